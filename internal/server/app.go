// Package server builds the application's long-lived dependencies from
// configuration and exposes the scrape, process and dashboard entry points.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/waste-tracker/internal/api"
	"github.com/JakeFAU/waste-tracker/internal/clock/system"
	"github.com/JakeFAU/waste-tracker/internal/config"
	"github.com/JakeFAU/waste-tracker/internal/dashboard"
	"github.com/JakeFAU/waste-tracker/internal/export"
	"github.com/JakeFAU/waste-tracker/internal/geocode"
	"github.com/JakeFAU/waste-tracker/internal/hash/sha256"
	"github.com/JakeFAU/waste-tracker/internal/id/uuid"
	"github.com/JakeFAU/waste-tracker/internal/logging"
	"github.com/JakeFAU/waste-tracker/internal/pipeline"
	"github.com/JakeFAU/waste-tracker/internal/portal"
	memorypublisher "github.com/JakeFAU/waste-tracker/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/waste-tracker/internal/publisher/pubsub"
	"github.com/JakeFAU/waste-tracker/internal/records"
	"github.com/JakeFAU/waste-tracker/internal/sheets"
	googlesheets "github.com/JakeFAU/waste-tracker/internal/sheets/google"
	memorysheets "github.com/JakeFAU/waste-tracker/internal/sheets/memory"
	"github.com/JakeFAU/waste-tracker/internal/snapshot"
	gcsstorage "github.com/JakeFAU/waste-tracker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/waste-tracker/internal/storage/local"
	memorystorage "github.com/JakeFAU/waste-tracker/internal/storage/memory"
	pgstore "github.com/JakeFAU/waste-tracker/internal/storage/postgres"
	"github.com/JakeFAU/waste-tracker/internal/waitfile"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	blobs           records.BlobStore
	local           *localstorage.BlobStore
	runs            records.RunStore
	notifier        records.Notifier
	sheetsClient    sheets.Client
	storage         *storage.Client
	pgRuns          *pgstore.RunStore
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
}

// Build creates the application's dependencies. The logger is built from the
// configuration and installed as the zap global.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("sheets", cfg.Sheets.Backend),
		zap.Bool("database", cfg.Database.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)

	steps := []func(context.Context) error{
		app.setupStorage,
		app.setupDatabase,
		app.setupPublisher,
		app.setupSheets,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Blobs exposes the configured blob store.
func (a *App) Blobs() records.BlobStore {
	return a.blobs
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket: a.cfg.Storage.Bucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
	case "local":
		a.local, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = a.local
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
	default:
		a.blobs = memorystorage.NewBlobStore()
		a.logger.Info("using in-memory storage backend")
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database DSN, keeping run history in memory")
		a.runs = memorystorage.NewRunStore()
		return nil
	}
	var err error
	a.pgRuns, err = pgstore.NewRunStore(ctx, pgstore.RunStoreConfig{
		DSN:      a.cfg.Database.DSN,
		Table:    a.cfg.Database.Table,
		MaxConns: a.cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.runs = a.pgRuns
	a.logger.Info("run store initialized", zap.String("table", a.cfg.Database.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub project configured, using in-memory notifier")
		a.notifier = memorypublisher.New()
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = a.pubsubClient.Publisher(a.cfg.PubSub.TopicName)
	a.notifier = gcppublisher.New(a.pubsubPublisher, "waste-tracker")
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupSheets(ctx context.Context) error {
	if a.cfg.Sheets.Backend == "memory" {
		a.sheetsClient = memorysheets.New()
		a.logger.Info("using in-memory spreadsheet backend")
		return nil
	}
	var opts []option.ClientOption
	if a.cfg.Sheets.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(a.cfg.Sheets.CredentialsFile))
	}
	client, err := googlesheets.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("sheets client init failed: %w", err)
	}
	a.sheetsClient = client
	return nil
}

// Scraper returns a portal client writing to the pipeline input path.
func (a *App) Scraper() (*portal.Client, error) {
	p := a.cfg.Portal
	client, err := portal.New(portal.Config{
		LoginURL:     p.LoginURL,
		ExportURL:    p.ExportURL,
		Username:     p.Username,
		Password:     p.Password,
		UserAgent:    p.UserAgent,
		OutputDir:    p.OutputDir,
		DownloadName: p.DownloadName,
		Destination:  a.cfg.Pipeline.InputPath,
		Mode:         p.DownloadMode,
		Headless:     p.Headless,
		Timeout:      p.Timeout(),
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("portal init failed: %w", err)
	}
	return client, nil
}

// Pipeline assembles a processing run. force publishes even when the input
// matches the stored snapshot.
func (a *App) Pipeline(force bool) (*pipeline.Pipeline, error) {
	table, err := geocode.Load(a.cfg.Geocode.Path)
	if err != nil {
		return nil, err
	}
	differ, err := snapshot.NewDiffer(a.blobs, a.cfg.Storage.SnapshotKey, records.ExportSchema())
	if err != nil {
		return nil, fmt.Errorf("snapshot differ init failed: %w", err)
	}
	clock := system.New()
	publisher, err := sheets.NewPublisher(a.sheetsClient, a.blobs, clock, sheets.Config{
		Name:      a.cfg.Sheets.Name,
		ShareWith: a.cfg.Sheets.ShareWith,
		Mode:      sheets.ReplaceMode(a.cfg.Sheets.ReplaceMode),
		MarkerKey: a.cfg.Storage.MarkerKey,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("sheet publisher init failed: %w", err)
	}
	writer, err := export.NewWriter(a.blobs, table, export.Config{
		Key:            a.cfg.Storage.ExportKey,
		DropUnresolved: a.cfg.Export.DropUnresolved,
	})
	if err != nil {
		return nil, fmt.Errorf("export writer init failed: %w", err)
	}

	p, err := pipeline.New(pipeline.Config{
		InputPath: a.cfg.Pipeline.InputPath,
		Wait: waitfile.Options{
			Interval: a.cfg.Pipeline.WaitInterval(),
			Timeout:  a.cfg.Pipeline.WaitTimeout(),
		},
		Rules: a.cfg.Normalize.Rules,
		Force: force || a.cfg.Pipeline.Force,
	}, pipeline.Deps{
		Differ:   differ,
		Sheets:   publisher,
		Export:   writer,
		Runs:     a.runs,
		Notifier: a.notifier,
		Clock:    clock,
		IDs:      uuid.NewUUIDGenerator(),
		Hasher:   sha256.New(),
		Logger:   a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	return p, nil
}

// Dashboard loads the latest export into a dashboard model. With the local
// backend it first waits for the export file to appear.
func (a *App) Dashboard(ctx context.Context) (*dashboard.Model, error) {
	if a.local != nil {
		path, err := a.local.Path(a.cfg.Storage.ExportKey)
		if err != nil {
			return nil, fmt.Errorf("resolve export path: %w", err)
		}
		a.logger.Info("waiting for export", zap.String("path", path))
		if err := waitfile.Wait(ctx, path, waitfile.Options{
			Interval: a.cfg.Pipeline.WaitInterval(),
			Timeout:  a.cfg.Pipeline.WaitTimeout(),
		}); err != nil {
			return nil, fmt.Errorf("wait for export: %w", err)
		}
	}
	model, err := dashboard.Load(ctx, a.blobs, a.cfg.Storage.ExportKey, a.cfg.Storage.MarkerKey)
	if err != nil {
		return nil, err
	}
	return model, nil
}

// APIServer builds the dashboard HTTP surface over model.
func (a *App) APIServer(model *dashboard.Model) (*api.Server, error) {
	srv, err := api.NewServer(model, api.Config{
		APIKey:         a.cfg.Server.APIKey,
		RequestTimeout: a.cfg.Server.RequestTimeout(),
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("api server init failed: %w", err)
	}
	return srv, nil
}

// Serve loads the dashboard and serves it until ctx is canceled or a
// termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, err := a.Dashboard(ctx)
	if err != nil {
		return err
	}
	apiServer, err := a.APIServer(model)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port), zap.Int("rows", model.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases clients held by the application.
func (a *App) Close() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	a.pgRuns.Close()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

// Scrape downloads the portal export to the pipeline input path.
func (a *App) Scrape(ctx context.Context) (string, error) {
	client, err := a.Scraper()
	if err != nil {
		return "", err
	}
	path, err := client.Download(ctx)
	if err != nil {
		return "", fmt.Errorf("scrape portal: %w", err)
	}
	return path, nil
}

// Process runs the pipeline once.
func (a *App) Process(ctx context.Context, force bool) (pipeline.Report, error) {
	p, err := a.Pipeline(force)
	if err != nil {
		return pipeline.Report{}, err
	}
	report, err := p.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("process export: %w", err)
	}
	return report, nil
}

// Summary computes the dashboard view of the current export for f.
func (a *App) Summary(ctx context.Context, f dashboard.Filter) (dashboard.View, error) {
	model, err := dashboard.Load(ctx, a.blobs, a.cfg.Storage.ExportKey, a.cfg.Storage.MarkerKey)
	if err != nil {
		return dashboard.View{}, err
	}
	return model.View(f), nil
}
