package sheets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/waste-tracker/internal/records"
)

// MarkerLayout is the format of the last-updated marker.
const MarkerLayout = "02-01-2006 15:04:05"

// ReplaceMode selects how the existing spreadsheet is replaced.
type ReplaceMode string

const (
	// DeleteFirst deletes the old spreadsheet before creating the new one.
	// A failure between the two leaves no spreadsheet.
	DeleteFirst ReplaceMode = "delete_first"
	// CreateThenSwap fills a spreadsheet under a temporary name, then
	// deletes the old one and renames the new one into place.
	CreateThenSwap ReplaceMode = "create_then_swap"
)

// File is a spreadsheet visible to the service identity.
type File struct {
	ID   string
	Name string
}

// Client is the subset of the Drive and Sheets APIs the publisher needs.
type Client interface {
	ListSpreadsheets(ctx context.Context) ([]File, error)
	DeleteSpreadsheet(ctx context.Context, id string) error
	CreateSpreadsheet(ctx context.Context, title string) (string, error)
	ShareWriter(ctx context.Context, id, email string) error
	WriteValues(ctx context.Context, id string, values [][]any) error
	RenameSpreadsheet(ctx context.Context, id, title string) error
}

// Config controls publication.
type Config struct {
	Name      string
	ShareWith string
	Mode      ReplaceMode
	MarkerKey string
}

// Result describes a successful publication.
type Result struct {
	SpreadsheetID string
	Deleted       int
	Marker        string
}

// Publisher replaces the target spreadsheet with a dataset.
type Publisher struct {
	client Client
	store  records.BlobStore
	clock  records.Clock
	cfg    Config
	logger *zap.Logger
}

// NewPublisher validates cfg and returns a Publisher.
func NewPublisher(client Client, store records.BlobStore, clock records.Clock, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("sheets client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("spreadsheet name is required")
	}
	if cfg.MarkerKey == "" {
		return nil, fmt.Errorf("marker key is required")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = DeleteFirst
	case DeleteFirst, CreateThenSwap:
	default:
		return nil, fmt.Errorf("unknown replace mode %q", cfg.Mode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, store: store, clock: clock, cfg: cfg, logger: logger}, nil
}

// Publish replaces the spreadsheet with ds and then writes the marker. Any
// API failure aborts publication and the marker is left untouched.
func (p *Publisher) Publish(ctx context.Context, ds records.Dataset) (Result, error) {
	values := ToValues(ds)

	existing, err := p.client.ListSpreadsheets(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list spreadsheets: %w", err)
	}
	var stale []string
	for _, f := range existing {
		if f.Name == p.cfg.Name {
			stale = append(stale, f.ID)
		}
	}

	var id string
	switch p.cfg.Mode {
	case CreateThenSwap:
		id, err = p.createThenSwap(ctx, stale, values)
	default:
		id, err = p.deleteFirst(ctx, stale, values)
	}
	if err != nil {
		return Result{}, err
	}
	p.logger.Info("spreadsheet published",
		zap.String("spreadsheet_id", id),
		zap.String("name", p.cfg.Name),
		zap.Int("rows", ds.Len()),
		zap.Int("replaced", len(stale)),
	)

	marker := p.clock.Now().Format(MarkerLayout)
	if _, err := p.store.PutObject(ctx, p.cfg.MarkerKey, "text/plain", strings.NewReader(marker)); err != nil {
		return Result{}, fmt.Errorf("write marker: %w", err)
	}
	return Result{SpreadsheetID: id, Deleted: len(stale), Marker: marker}, nil
}

func (p *Publisher) deleteFirst(ctx context.Context, stale []string, values [][]any) (string, error) {
	if err := p.deleteAll(ctx, stale); err != nil {
		return "", err
	}
	id, err := p.client.CreateSpreadsheet(ctx, p.cfg.Name)
	if err != nil {
		return "", fmt.Errorf("create spreadsheet: %w", err)
	}
	if err := p.fill(ctx, id, values); err != nil {
		return "", err
	}
	return id, nil
}

func (p *Publisher) createThenSwap(ctx context.Context, stale []string, values [][]any) (string, error) {
	tmpName := fmt.Sprintf("%s.tmp-%d", p.cfg.Name, p.clock.Now().Unix())
	id, err := p.client.CreateSpreadsheet(ctx, tmpName)
	if err != nil {
		return "", fmt.Errorf("create spreadsheet: %w", err)
	}
	if err := p.fill(ctx, id, values); err != nil {
		p.discard(ctx, id)
		return "", err
	}
	if err := p.deleteAll(ctx, stale); err != nil {
		p.discard(ctx, id)
		return "", err
	}
	if err := p.client.RenameSpreadsheet(ctx, id, p.cfg.Name); err != nil {
		p.discard(ctx, id)
		return "", fmt.Errorf("rename spreadsheet: %w", err)
	}
	return id, nil
}

// discard removes a temporary spreadsheet. Its name never matches the
// configured one, so a later run would not clean it up.
func (p *Publisher) discard(ctx context.Context, id string) {
	if err := p.client.DeleteSpreadsheet(ctx, id); err != nil {
		p.logger.Warn("failed to remove temporary spreadsheet", zap.String("spreadsheet_id", id), zap.Error(err))
	}
}

func (p *Publisher) deleteAll(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := p.client.DeleteSpreadsheet(ctx, id); err != nil {
			return fmt.Errorf("delete spreadsheet %s: %w", id, err)
		}
		p.logger.Debug("deleted spreadsheet", zap.String("spreadsheet_id", id))
	}
	return nil
}

func (p *Publisher) fill(ctx context.Context, id string, values [][]any) error {
	if p.cfg.ShareWith != "" {
		if err := p.client.ShareWriter(ctx, id, p.cfg.ShareWith); err != nil {
			return fmt.Errorf("share spreadsheet: %w", err)
		}
	}
	if err := p.client.WriteValues(ctx, id, values); err != nil {
		return fmt.Errorf("write values: %w", err)
	}
	return nil
}
