// Package pipeline runs one processing pass: it waits for the scraped export,
// decides whether anything changed, then filters, normalizes, publishes and
// exports the records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/waste-tracker/internal/export"
	"github.com/JakeFAU/waste-tracker/internal/records"
	"github.com/JakeFAU/waste-tracker/internal/sheets"
	"github.com/JakeFAU/waste-tracker/internal/snapshot"
	"github.com/JakeFAU/waste-tracker/internal/tabular"
	"github.com/JakeFAU/waste-tracker/internal/telemetry"
	"github.com/JakeFAU/waste-tracker/internal/transform"
	"github.com/JakeFAU/waste-tracker/internal/waitfile"
)

// Notification event names.
const (
	EventCompleted = "run.completed"
	EventFailed    = "run.failed"
)

// SheetPublisher replaces the remote spreadsheet.
type SheetPublisher interface {
	Publish(ctx context.Context, ds records.Dataset) (sheets.Result, error)
}

// ExportWriter persists the geocoded export.
type ExportWriter interface {
	Write(ctx context.Context, ds records.Dataset) (export.Result, error)
}

// Config controls a run.
type Config struct {
	InputPath string
	Wait      waitfile.Options
	Rules     []transform.Rule
	// Force publishes even when the input matches the snapshot.
	Force bool
}

// Deps are the collaborators of a Pipeline. Runs and Notifier are optional.
type Deps struct {
	Differ   *snapshot.Differ
	Sheets   SheetPublisher
	Export   ExportWriter
	Runs     records.RunStore
	Notifier records.Notifier
	Clock    records.Clock
	IDs      records.IDGenerator
	Hasher   records.Hasher
	Logger   *zap.Logger
}

// Report describes a finished run.
type Report struct {
	Run     records.RunRecord
	Changed bool
	Range   transform.DateRange
}

// Pipeline is safe to reuse across sequential runs.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates the configuration and dependencies.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.InputPath == "" {
		return nil, fmt.Errorf("input path is required")
	}
	switch {
	case deps.Differ == nil:
		return nil, fmt.Errorf("snapshot differ is required")
	case deps.Sheets == nil:
		return nil, fmt.Errorf("sheet publisher is required")
	case deps.Export == nil:
		return nil, fmt.Errorf("export writer is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: logger.Named("pipeline")}, nil
}

// Run executes one pass. A failed run is still recorded and announced before
// its error is returned.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	started := p.deps.Clock.Now()
	id, err := p.deps.IDs.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("run id: %w", err)
	}
	report := Report{Run: records.RunRecord{ID: id, StartedAt: started}}
	log := p.log.With(zap.String("run_id", id))

	runErr := p.run(ctx, log, started, &report)
	report.Run.FinishedAt = p.deps.Clock.Now()
	event := EventCompleted
	if runErr != nil {
		report.Run.Outcome = records.RunFailed
		report.Run.ErrorText = runErr.Error()
		event = EventFailed
		log.Error("run failed", zap.Error(runErr))
	}
	telemetry.ObserveRun(string(report.Run.Outcome))
	p.finish(ctx, log, event, report.Run)
	return report, runErr
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, started time.Time, report *Report) error {
	stage := time.Now()
	if err := waitfile.Wait(ctx, p.cfg.InputPath, p.cfg.Wait); err != nil {
		return err
	}
	telemetry.ObserveStage("wait", time.Since(stage))
	log.Info("input found", zap.String("path", p.cfg.InputPath))

	fresh, raw, err := tabular.ReadFile(p.cfg.InputPath, records.ExportSchema())
	if err != nil {
		return err
	}
	report.Run.RowsFetched = fresh.Len()
	telemetry.ObserveRows("fetched", fresh.Len())
	if report.Run.InputHash, err = p.deps.Hasher.Hash(raw); err != nil {
		return fmt.Errorf("hash input: %w", err)
	}

	diff, err := p.deps.Differ.Compare(ctx, fresh)
	if err != nil {
		return err
	}
	report.Changed = diff.Changed
	if !diff.Changed && !p.cfg.Force {
		report.Run.Outcome = records.RunUnchanged
		log.Info("identical file detected with previous version, no change needed",
			zap.Int("rows", fresh.Len()),
			zap.String("input_hash", report.Run.InputHash),
		)
		return nil
	}
	log.Info("new data detected",
		zap.Bool("first_run", diff.FirstRun),
		zap.Bool("forced", !diff.Changed),
		zap.Int("rows", fresh.Len()),
	)

	filtered, span, err := transform.FilterYear(fresh, records.ColumnCompletionDate, started)
	if err != nil {
		return err
	}
	report.Range = span
	report.Run.RowsRetained = filtered.Len()
	telemetry.ObserveRows("retained", filtered.Len())
	log.Info("filtered to current year",
		zap.Int("retained", filtered.Len()),
		zap.Time("min_date", span.Min),
		zap.Time("max_date", span.Max),
	)

	normalized, err := transform.Normalize(filtered, p.cfg.Rules)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	stage = time.Now()
	published, err := p.deps.Sheets.Publish(ctx, normalized)
	if err != nil {
		return fmt.Errorf("publish spreadsheet: %w", err)
	}
	telemetry.ObserveStage("publish", time.Since(stage))
	report.Run.SpreadsheetID = published.SpreadsheetID

	stage = time.Now()
	exported, err := p.deps.Export.Write(ctx, normalized)
	if err != nil {
		return err
	}
	telemetry.ObserveStage("export", time.Since(stage))
	telemetry.ObserveUnresolved(exported.Unresolved)
	report.Run.Unresolved = exported.Unresolved
	if exported.Unresolved > 0 {
		log.Warn("rows without coordinates",
			zap.Int("unresolved", exported.Unresolved),
			zap.Int("dropped", exported.Dropped),
		)
	}

	if err := p.deps.Differ.Commit(ctx, raw); err != nil {
		return err
	}
	report.Run.Outcome = records.RunPublished
	telemetry.ObservePublish(p.deps.Clock.Now())
	log.Info("run published",
		zap.String("spreadsheet_id", published.SpreadsheetID),
		zap.String("export_uri", exported.URI),
		zap.String("marker", published.Marker),
	)
	return nil
}

// finish stores and announces the run. Failures here are logged only; they
// never change the run's outcome.
func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, event string, run records.RunRecord) {
	// Recorded even when the run context was canceled.
	ctx = context.WithoutCancel(ctx)
	if p.deps.Runs != nil {
		if err := p.deps.Runs.RecordRun(ctx, run); err != nil {
			log.Warn("failed to record run", zap.Error(err))
		}
	}
	if p.deps.Notifier != nil {
		if _, err := p.deps.Notifier.Publish(ctx, event, run); err != nil {
			log.Warn("failed to publish run notification", zap.Error(err))
		}
	}
}

// IsTimeout reports whether err came from the input wait gate.
func IsTimeout(err error) bool {
	return errors.Is(err, waitfile.ErrTimeout)
}
