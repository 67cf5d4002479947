package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
)

var (
	enrichName    string
	enrichCompany string
	enrichFileID  string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a single lead synchronously and print the result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		in := model.LeadInput{FullName: enrichName, Company: enrichCompany}.Normalize()
		if !in.Valid() {
			return eris.New("--name and --company are required")
		}
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{Providers: true, Migrate: true})
		if err != nil {
			return err
		}
		defer env.Close()

		fileID := enrichFileID
		if fileID == "" {
			f, err := env.Store.CreateFile(ctx, "Enrich "+time.Now().UTC().Format("2006-01-02 15:04"), 1)
			if err != nil {
				return eris.Wrap(err, "create file")
			}
			fileID = f.ID
		}

		leads, err := env.Store.InsertLeads(ctx, fileID, []model.LeadInput{in})
		if err != nil {
			return eris.Wrap(err, "insert lead")
		}

		start := time.Now()
		lead, err := env.Orch.EnrichNow(ctx, leads[0].ID)
		if err != nil {
			return eris.Wrap(err, "enrich lead")
		}
		zap.L().Info("enrich complete",
			zap.String("lead_id", lead.ID),
			zap.String("status", string(lead.Status)),
			zap.Duration("elapsed", time.Since(start)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lead)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichName, "name", "", "lead full name (required)")
	enrichCmd.Flags().StringVar(&enrichCompany, "company", "", "lead company (required)")
	enrichCmd.Flags().StringVar(&enrichFileID, "file-id", "", "existing file to add the lead to")
	rootCmd.AddCommand(enrichCmd)
}
