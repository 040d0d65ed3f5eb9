// Package probe polls the agent's two ports until they respond, with a
// bounded number of attempts.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Options bound a polling loop.
type Options struct {
	Attempts int
	Interval time.Duration
	Client   *http.Client
}

func (o *Options) fill() {
	if o.Attempts <= 0 {
		o.Attempts = 30
	}
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.Client == nil {
		o.Client = &http.Client{
			Timeout: 3 * time.Second,
			// The UI may answer with a redirect to /login; a redirect is
			// already proof of life, don't follow it.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
}

// Metrics polls url until it returns 200 with a body that looks like
// Prometheus exposition text.
func Metrics(ctx context.Context, url string, opts Options) error {
	opts.fill()
	return poll(ctx, opts, func() error {
		resp, err := opts.Client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return err
		}
		if !LooksLikeExposition(string(body)) {
			return fmt.Errorf("body is not prometheus exposition text")
		}
		return nil
	})
}

// WebUI polls url until it answers with any status treated as "up":
// 200, 301, 302 or 401 (the UI challenges unauthenticated browsers).
func WebUI(ctx context.Context, url string, opts Options) error {
	opts.fill()
	return poll(ctx, opts, func() error {
		resp, err := opts.Client.Get(url)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK, http.StatusMovedPermanently, http.StatusFound, http.StatusUnauthorized:
			return nil
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	})
}

// LooksLikeExposition reports whether body resembles the line-oriented
// Prometheus text format: a # HELP/# TYPE comment or a "name value" sample.
func LooksLikeExposition(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# HELP ") || strings.HasPrefix(line, "# TYPE ") {
			return true
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}

func poll(ctx context.Context, opts Options, try func() error) error {
	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = try(); lastErr == nil {
			return nil
		}
		if attempt < opts.Attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", opts.Attempts, lastErr)
}
