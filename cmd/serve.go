package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the collections dashboard",
		Long: `Waits for the geocoded export, then serves the map dashboard, its JSON
API and Prometheus metrics until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			return appInstance.Serve(cmd.Context())
		},
	}
}
