package portal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/gocolly/colly/v2"
)

// httpDownloader fetches the export outside the browser with the session
// cookies the browser obtained at login.
type httpDownloader struct {
	userAgent string
	timeout   time.Duration
}

func (d httpDownloader) download(ctx context.Context, link string, cookies []*http.Cookie, path string) error {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = 0
	if d.userAgent != "" {
		c.UserAgent = d.userAgent
	}
	if d.timeout > 0 {
		c.SetRequestTimeout(d.timeout)
	}
	if err := c.SetCookies(link, cookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}

	var saveErr, fetchErr error
	c.OnResponse(func(r *colly.Response) {
		saveErr = r.Save(path)
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(link)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("download canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return fmt.Errorf("download export: %w", fetchErr)
		}
		if err != nil {
			return fmt.Errorf("download export: %w", err)
		}
		if saveErr != nil {
			return fmt.Errorf("save export: %w", saveErr)
		}
		return nil
	}
}

func toHTTPCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}
