package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProcessCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Filters the downloaded export and publishes it when it changed",
		Long: `Waits for the downloaded export, compares it with the last published
snapshot and, when it differs, publishes the current year's rows to the
spreadsheet and writes the geocoded export read by the dashboard.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			return process(cmd.Context(), cmd, appInstance, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "publish even when the export is unchanged")
	return cmd
}

func process(ctx context.Context, cmd *cobra.Command, appInstance App, force bool) error {
	report, err := appInstance.Process(ctx, force)
	if err != nil {
		return err
	}
	appInstance.Logger().Info("process finished",
		zap.String("run_id", report.Run.ID),
		zap.String("outcome", string(report.Run.Outcome)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s\n", report.Run.ID, report.Run.Outcome)
	return nil
}
