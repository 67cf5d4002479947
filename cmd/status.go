package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enricher/internal/model"
)

var statusFileID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lead progress per file and job queue depth",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		var files []model.FileSummary
		if statusFileID != "" {
			f, err := env.Store.GetFile(ctx, statusFileID)
			if err != nil {
				return eris.Wrap(err, "status")
			}
			stats, err := env.Store.FileStats(ctx, statusFileID)
			if err != nil {
				return eris.Wrap(err, "file stats")
			}
			files = []model.FileSummary{{File: *f, Stats: *stats}}
		} else {
			files, err = env.Store.ListFiles(ctx)
			if err != nil {
				return eris.Wrap(err, "list files")
			}
		}

		var counts model.JobCounts
		if env.Queue != nil {
			counts, err = env.Queue.Counts(ctx)
			if err != nil {
				return eris.Wrap(err, "queue counts")
			}
		}

		return printStatus(os.Stdout, files, counts)
	},
}

func printStatus(out io.Writer, files []model.FileSummary, counts model.JobCounts) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tNAME\tTOTAL\tCOMPLETED\tFAILED\tPENDING\tPROCESSING\tWITH CEO")
	for _, f := range files {
		s := f.Stats
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			f.ID, f.Name, s.CurrentTotal, s.Completed, s.Failed, s.Pending, s.Processing, s.WithCEO)
	}

	if counts != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "JOB TYPE\tQUEUED\tRUNNING\tSUCCEEDED\tDEAD")
		for _, jt := range model.JobTypes {
			c := counts[jt]
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", jt,
				c[model.JobStatusQueued], c[model.JobStatusRunning], c[model.JobStatusSucceeded], c[model.JobStatusDead])
		}
	}
	return w.Flush()
}

func init() {
	statusCmd.Flags().StringVar(&statusFileID, "file-id", "", "limit output to one file")
	rootCmd.AddCommand(statusCmd)
}
