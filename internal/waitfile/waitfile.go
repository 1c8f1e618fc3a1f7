// Package waitfile blocks until a file appears on disk. It is the hand-off
// point between the scraper, the processor and the dashboard.
package waitfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrTimeout is returned when the file did not appear in time.
var ErrTimeout = errors.New("timed out waiting for file")

// Defaults used when Options leaves a field zero.
const (
	DefaultInterval = time.Second
	DefaultTimeout  = 500 * time.Second
)

// Options bounds the poll.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Wait returns nil as soon as path exists. It checks immediately, then on
// every tick, and gives up with ErrTimeout after opts.Timeout or with the
// context's error when ctx is done.
func Wait(ctx context.Context, path string, opts Options) error {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	ok, err := exists(path)
	if err != nil || ok {
		return err
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", path, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("%s not found after %s: %w", path, opts.Timeout, ErrTimeout)
		case <-ticker.C:
			ok, err := exists(path)
			if err != nil || ok {
				return err
			}
		}
	}
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
