package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/api"
)

var (
	exportFileID string
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a file's leads as CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		write := api.WriteCSV
		switch exportFormat {
		case "csv":
		case "xlsx":
			write = api.WriteXLSX
		default:
			return eris.Errorf("unsupported format %q (csv, xlsx)", exportFormat)
		}
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Store.GetFile(ctx, exportFileID); err != nil {
			return eris.Wrap(err, "export")
		}
		leads, err := env.Store.ListLeads(ctx, exportFileID)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		var w io.Writer = os.Stdout
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "create output")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		if err := write(w, leads); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.String("file_id", exportFileID),
			zap.String("format", exportFormat),
			zap.Int("leads", len(leads)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFileID, "file-id", "", "file to export (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default stdout)")
	_ = exportCmd.MarkFlagRequired("file-id")
	rootCmd.AddCommand(exportCmd)
}
