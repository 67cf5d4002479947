package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var retryFileID string

var retryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Reset a file's failed leads to pending and queue them again",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{Starter: true})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Orch.RetryFailed(ctx, retryFileID)
		if err != nil {
			return eris.Wrap(err, "retry failed leads")
		}
		zap.L().Info("failed leads requeued",
			zap.String("file_id", retryFileID),
			zap.Int("leads", n),
		)
		return nil
	},
}

func init() {
	retryFailedCmd.Flags().StringVar(&retryFileID, "file-id", "", "file whose failed leads to retry (required)")
	_ = retryFailedCmd.MarkFlagRequired("file-id")
	rootCmd.AddCommand(retryFailedCmd)
}
