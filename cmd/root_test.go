package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/waste-tracker/internal/dashboard"
	"github.com/JakeFAU/waste-tracker/internal/pipeline"
	"github.com/JakeFAU/waste-tracker/internal/records"
)

type mockApp struct {
	mock.Mock
}

func (m *mockApp) Close() { m.Called() }

func (m *mockApp) Logger() *zap.Logger { return zap.NewNop() }

func (m *mockApp) Scrape(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockApp) Process(ctx context.Context, force bool) (pipeline.Report, error) {
	args := m.Called(ctx, force)
	return args.Get(0).(pipeline.Report), args.Error(1)
}

func (m *mockApp) Serve(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockApp) Summary(ctx context.Context, f dashboard.Filter) (dashboard.View, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(dashboard.View), args.Error(1)
}

func execute(t *testing.T, app App, args ...string) (string, error) {
	t.Helper()
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, string) (App, error) { return app, nil }

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProcessCommand(t *testing.T) {
	app := &mockApp{}
	app.On("Process", mock.Anything, true).Return(pipeline.Report{
		Run: records.RunRecord{ID: "run-1", Outcome: records.RunPublished},
	}, nil)
	app.On("Close").Return()

	out, err := execute(t, app, "process", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "run run-1: published")
	app.AssertExpectations(t)
}

func TestRunCommandStopsOnScrapeFailure(t *testing.T) {
	app := &mockApp{}
	app.On("Scrape", mock.Anything).Return("", errors.New("login failed"))
	app.On("Close").Return()

	_, err := execute(t, app, "run")
	assert.ErrorContains(t, err, "login failed")
	app.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestRunCommand(t *testing.T) {
	app := &mockApp{}
	app.On("Scrape", mock.Anything).Return("outputs/new.xlsx", nil)
	app.On("Process", mock.Anything, false).Return(pipeline.Report{
		Run: records.RunRecord{ID: "run-2", Outcome: records.RunUnchanged},
	}, nil)
	app.On("Close").Return()

	out, err := execute(t, app, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "run run-2: unchanged")
	app.AssertExpectations(t)
}

func TestSummaryCommand(t *testing.T) {
	app := &mockApp{}
	filter := dashboard.Filter{ServiceType: "Collecte"}
	app.On("Summary", mock.Anything, filter).Return(dashboard.View{
		Rows:       3,
		MeanHour:   10,
		LastUpdate: "15-06-2024 09:00:00",
		Materials: []dashboard.MaterialCount{
			{Material: "Carton", Count: 2},
			{Material: dashboard.UnknownMaterial, Count: 1},
		},
	}, nil)
	app.On("Close").Return()

	out, err := execute(t, app, "summary", "--service-type", "Collecte")
	require.NoError(t, err)
	assert.Contains(t, out, "Nombre de lignes: 3")
	assert.Contains(t, out, "Carton")
	assert.Contains(t, out, "Inconnu")
	app.AssertExpectations(t)
}

func TestServeCommand(t *testing.T) {
	app := &mockApp{}
	app.On("Serve", mock.Anything).Return(nil)
	app.On("Close").Return()

	_, err := execute(t, app, "serve")
	require.NoError(t, err)
	app.AssertExpectations(t)
}

func TestAppInitFailure(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("bad config") }

	root := newRootCmd()
	root.SetArgs([]string{"process"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "bad config")
}

func TestResolveAppMissing(t *testing.T) {
	_, err := resolveApp(context.Background())
	assert.Error(t, err)
}
