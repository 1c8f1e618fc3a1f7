// Package portal downloads the completed-services export from the collection
// provider's customer portal. A headless Chrome session logs in and resolves
// the "Export Excel" link. The file is then fetched either by the browser
// itself or by an HTTP client that reuses the session cookies.
package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/waste-tracker/internal/telemetry"
	"github.com/JakeFAU/waste-tracker/internal/waitfile"
)

// Download modes.
const (
	ModeBrowser = "browser"
	ModeHTTP    = "http"
)

// XPath selectors of the portal pages.
const (
	emailInput    = `//input[@name="email"]`
	passwordInput = `//input[@name="password"]`
	loginButton   = `//button[.//div[text()=" Se connecter "]]`
	loggedInMark  = `//span[contains(text(), "Modules")]`
	exportLink    = `//a[contains(., "Export Excel")]`
)

// ErrLinkNotReady is returned when the export link never pointed at the API.
var ErrLinkNotReady = errors.New("export link not ready")

// Config controls a scrape.
type Config struct {
	LoginURL     string
	ExportURL    string
	Username     string
	Password     string
	UserAgent    string
	OutputDir    string
	DownloadName string
	// Destination is where the downloaded file is moved once complete.
	Destination string
	Mode        string
	Headless    bool
	Timeout     time.Duration
	// PollInterval paces the export link and download checks.
	PollInterval time.Duration
}

// Client drives the portal.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.LoginURL == "" || cfg.ExportURL == "" {
		return nil, fmt.Errorf("portal login and export urls are required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("portal credentials are required")
	}
	if cfg.OutputDir == "" || cfg.DownloadName == "" || cfg.Destination == "" {
		return nil, fmt.Errorf("portal output dir, download name and destination are required")
	}
	// Chrome resolves download paths against its own working directory.
	dir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	cfg.OutputDir = dir
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeBrowser
	case ModeBrowser, ModeHTTP:
	default:
		return nil, fmt.Errorf("unknown download mode %q", cfg.Mode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: logger.Named("portal")}, nil
}

// Download logs in, fetches the export and moves it to the configured
// destination, whose path is returned.
func (c *Client) Download(ctx context.Context) (string, error) {
	start := time.Now()
	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	downloaded := filepath.Join(c.cfg.OutputDir, c.cfg.DownloadName)
	if err := os.Remove(downloaded); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale download: %w", err)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	taskCtx, cancelTask := context.WithTimeout(browserCtx, c.cfg.Timeout)
	defer cancelTask()

	if err := chromedp.Run(taskCtx, c.login()...); err != nil {
		return "", fmt.Errorf("portal login: %w", err)
	}
	c.logger.Info("logged in", zap.String("url", c.cfg.LoginURL))

	if err := chromedp.Run(taskCtx, chromedp.Navigate(c.cfg.ExportURL)); err != nil {
		return "", fmt.Errorf("open export page: %w", err)
	}
	link, err := pollLink(taskCtx, c.cfg.PollInterval, readHref)
	if err != nil {
		return "", err
	}
	c.logger.Info("export link resolved", zap.String("href", link))

	switch c.cfg.Mode {
	case ModeHTTP:
		var cookies []*network.Cookie
		if err := chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs([]string{link}).Do(ctx)
			return err
		})); err != nil {
			return "", fmt.Errorf("read session cookies: %w", err)
		}
		d := httpDownloader{userAgent: c.cfg.UserAgent, timeout: c.cfg.Timeout}
		if err := d.download(taskCtx, link, toHTTPCookies(cookies), downloaded); err != nil {
			return "", err
		}
	default:
		if err := chromedp.Run(taskCtx,
			browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
				WithDownloadPath(c.cfg.OutputDir),
			chromedp.Click(exportLink, chromedp.BySearch),
		); err != nil {
			return "", fmt.Errorf("trigger download: %w", err)
		}
	}

	if err := c.finish(taskCtx, downloaded); err != nil {
		return "", err
	}
	telemetry.ObserveStage("scrape", time.Since(start))
	c.logger.Info("export downloaded", zap.String("path", c.cfg.Destination))
	return c.cfg.Destination, nil
}

func (c *Client) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	return append(opts,
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(c.cfg.UserAgent),
	)
}

func (c *Client) login() chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.Navigate(c.cfg.LoginURL),
		chromedp.WaitVisible(emailInput, chromedp.BySearch),
		chromedp.SendKeys(emailInput, c.cfg.Username, chromedp.BySearch),
		chromedp.SendKeys(passwordInput, c.cfg.Password, chromedp.BySearch),
		chromedp.Click(loginButton, chromedp.BySearch),
		chromedp.WaitVisible(loggedInMark, chromedp.BySearch),
	}
}

// finish waits for the download to land then moves it to the destination.
func (c *Client) finish(ctx context.Context, downloaded string) error {
	err := waitfile.Wait(ctx, downloaded, waitfile.Options{Interval: c.cfg.PollInterval, Timeout: c.cfg.Timeout})
	if err != nil {
		return fmt.Errorf("wait for download: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.cfg.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(downloaded, c.cfg.Destination); err != nil {
		return fmt.Errorf("move download: %w", err)
	}
	return nil
}

func readHref(ctx context.Context) (string, error) {
	var (
		href string
		ok   bool
	)
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(exportLink, chromedp.BySearch),
		chromedp.AttributeValue(exportLink, "href", &href, &ok, chromedp.BySearch),
	); err != nil {
		return "", fmt.Errorf("read export link: %w", err)
	}
	return href, nil
}

// pollLink calls read until the returned href targets the export API. The
// portal renders the link before its href is filled in.
func pollLink(ctx context.Context, every time.Duration, read func(context.Context) (string, error)) (string, error) {
	limiter := rate.NewLimiter(rate.Every(every), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %w", ErrLinkNotReady, err)
		}
		href, err := read(ctx)
		if err != nil {
			return "", err
		}
		if isAPILink(href) {
			return href, nil
		}
	}
}

func isAPILink(href string) bool {
	return strings.Contains(href, "api")
}
