package main

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/pipeline"
)

var (
	importCSVPath  string
	importFileName string
	importFileID   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a CSV file and queue them for enrichment",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		leads, err := readLeadsCSV(f)
		if err != nil {
			return eris.Wrapf(err, "read %s", importCSVPath)
		}

		env, err := initEnv(ctx, envOptions{Starter: true, Migrate: true})
		if err != nil {
			return err
		}
		defer env.Close()

		name := importFileName
		if name == "" && importFileID == "" {
			name = strings.TrimSuffix(filepath.Base(importCSVPath), filepath.Ext(importCSVPath))
		}
		resp, err := env.Orch.Intake(ctx, pipeline.ExtractRequest{
			Leads:    leads,
			FileID:   importFileID,
			FileName: name,
		})
		if err != nil {
			return eris.Wrap(err, "import csv")
		}

		zap.L().Info("import complete",
			zap.String("file_id", resp.FileID),
			zap.Int("rows", len(leads)),
			zap.Int("inserted", resp.InsertedCount),
			zap.Int("total", resp.TotalLeads),
		)
		return nil
	},
}

// csvAliases maps accepted header spellings to lead fields.
var csvAliases = map[string]string{
	"fullname":     "full_name",
	"full_name":    "full_name",
	"name":         "full_name",
	"company":      "company",
	"company_name": "company",
	"title":        "title",
	"location":     "location",
	"profileurl":   "profile_url",
	"profile_url":  "profile_url",
	"linkedin_url": "profile_url",
	"linkedin":     "profile_url",
}

// readLeadsCSV parses a CSV with a header row. Unknown columns are ignored;
// full name and company columns are required.
func readLeadsCSV(r io.Reader) ([]model.LeadInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, eris.New("csv is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if field, ok := csvAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	for _, required := range []string{"full_name", "company"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("missing %s column", required)
		}
	}

	get := func(rec []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var leads []model.LeadInput
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read row")
		}
		leads = append(leads, model.LeadInput{
			FullName:   get(rec, "full_name"),
			Company:    get(rec, "company"),
			Title:      get(rec, "title"),
			Location:   get(rec, "location"),
			ProfileURL: get(rec, "profile_url"),
		})
	}
	return leads, nil
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	importCmd.Flags().StringVar(&importFileName, "name", "", "file name (default: CSV base name)")
	importCmd.Flags().StringVar(&importFileID, "file-id", "", "append to an existing file")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
