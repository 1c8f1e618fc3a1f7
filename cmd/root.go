// Package cmd defines and implements the CLI commands for the tracker executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/waste-tracker/internal/config"
	"github.com/JakeFAU/waste-tracker/internal/dashboard"
	"github.com/JakeFAU/waste-tracker/internal/pipeline"
	"github.com/JakeFAU/waste-tracker/internal/server"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can
// inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Scrape(ctx context.Context) (string, error)
	Process(ctx context.Context, force bool) (pipeline.Report, error)
	Serve(ctx context.Context) error
	Summary(ctx context.Context, f dashboard.Filter) (dashboard.View, error)
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Tracks completed waste collections from the provider portal.",
		Long: `tracker downloads the completed-services export from the collection
provider's portal, keeps the current year's rows, publishes them to a Google
spreadsheet and serves a map dashboard of the geocoded collections.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	cmd.AddCommand(
		newScrapeCmd(),
		newProcessCmd(),
		newRunCmd(),
		newServeCmd(),
		newSummaryCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
