package cmd

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrapes the portal then processes the export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			if _, err := appInstance.Scrape(cmd.Context()); err != nil {
				return err
			}
			return process(cmd.Context(), cmd, appInstance, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "publish even when the export is unchanged")
	return cmd
}
