package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Downloads the completed-services export from the portal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			path, err := appInstance.Scrape(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.Logger().Info("scrape finished", zap.String("path", path))
			return nil
		},
	}
}
