package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		LoginURL:     "https://portal.example.com/",
		ExportURL:    "https://portal.example.com/realisees",
		Username:     "ops@example.com",
		Password:     "secret",
		OutputDir:    filepath.Join(dir, "outputs"),
		DownloadName: "veolia_prestation.xlsx",
		Destination:  filepath.Join(dir, "outputs", "new.xlsx"),
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	client, err := New(validConfig(t), nil)
	require.NoError(t, err)
	assert.Equal(t, ModeBrowser, client.cfg.Mode)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.LoginURL = "" }},
		{"missing credentials", func(c *Config) { c.Password = "" }},
		{"missing destination", func(c *Config) { c.Destination = "" }},
		{"unknown mode", func(c *Config) { c.Mode = "ftp" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			tt.mutate(&cfg)
			_, err := New(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewResolvesRelativeOutputDir(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.OutputDir = "outputs"
	client, err := New(cfg, nil)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(client.cfg.OutputDir))
	assert.Equal(t, filepath.Join(wd, "outputs"), client.cfg.OutputDir)
}

func TestPollLinkWaitsForAPIHref(t *testing.T) {
	t.Parallel()

	hrefs := []string{"", "#", "https://portal.example.com/api/export?id=1"}
	calls := 0
	link, err := pollLink(context.Background(), time.Millisecond, func(context.Context) (string, error) {
		href := hrefs[calls]
		calls++
		return href, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com/api/export?id=1", link)
	assert.Equal(t, 3, calls)
}

func TestPollLinkStopsOnContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := pollLink(ctx, 5*time.Millisecond, func(context.Context) (string, error) {
		return "#", nil
	})
	assert.ErrorIs(t, err, ErrLinkNotReady)
}

func TestPollLinkPropagatesReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("no such node")
	_, err := pollLink(context.Background(), time.Millisecond, func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestFinishMovesDownload(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	client, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	downloaded := filepath.Join(cfg.OutputDir, cfg.DownloadName)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(downloaded, []byte("xlsx"), 0o600)
	}()

	require.NoError(t, client.finish(context.Background(), downloaded))
	data, err := os.ReadFile(cfg.Destination)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", string(data))
	assert.NoFileExists(t, downloaded)
}

func TestFinishTimesOut(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Timeout = 30 * time.Millisecond
	client, err := New(cfg, nil)
	require.NoError(t, err)

	err = client.finish(context.Background(), filepath.Join(cfg.OutputDir, cfg.DownloadName))
	assert.ErrorContains(t, err, "wait for download")
}

func TestHTTPDownloaderUsesSessionCookies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "tracker-test", r.UserAgent())
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = w.Write([]byte("export-bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "veolia_prestation.xlsx")
	d := httpDownloader{userAgent: "tracker-test", timeout: time.Second}
	cookies := []*http.Cookie{{Name: "session", Value: "abc"}}

	require.NoError(t, d.download(context.Background(), srv.URL+"/api/export", cookies, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "export-bytes", string(data))
}

func TestHTTPDownloaderRejectedSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "veolia_prestation.xlsx")
	err := httpDownloader{}.download(context.Background(), srv.URL+"/api/export", nil, path)
	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestToHTTPCookies(t *testing.T) {
	t.Parallel()

	in := []*network.Cookie{
		{Name: "session", Value: "abc", Domain: "portal.example.com", Path: "/", Secure: true, HTTPOnly: true, Expires: 1_700_000_000},
		nil,
		{Name: "lang", Value: "fr", Expires: -1},
	}
	out := toHTTPCookies(in)
	require.Len(t, out, 2)
	assert.Equal(t, "session", out[0].Name)
	assert.True(t, out[0].HttpOnly)
	assert.Equal(t, time.Unix(1_700_000_000, 0), out[0].Expires)
	assert.True(t, out[1].Expires.IsZero())
}
