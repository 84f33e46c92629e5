package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"procmux/internal/domain"
)

const (
	// DefaultAttempts bounds the whole probe window.
	DefaultAttempts = 7
	// DefaultBackoff is the delay after the first failed attempt; later
	// delays grow from it.
	DefaultBackoff = 500 * time.Millisecond
)

// HTTPProber polls a backend's root endpoint until it answers 200.
type HTTPProber struct {
	client   *http.Client
	attempts uint64
	backoff  time.Duration
	logger   domain.Logger
}

// NewHTTPProber creates a prober issuing at most attempts requests with an
// exponential delay schedule starting at base.
func NewHTTPProber(attempts int, base time.Duration, logger domain.Logger) *HTTPProber {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	if base <= 0 {
		base = DefaultBackoff
	}
	return &HTTPProber{
		client:   &http.Client{Timeout: 5 * time.Second},
		attempts: uint64(attempts),
		backoff:  base,
		logger:   logger,
	}
}

// WaitUntilReady polls url until it responds 200 or the attempt budget is
// exhausted. It never fails with an error; the caller decides what false
// means.
func (p *HTTPProber) WaitUntilReady(ctx context.Context, target string) bool {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		p.logger.Debug("invalid probe url", "url", target)
		return false
	}

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = p.backoff
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0
	schedule.MaxElapsedTime = 0 // bounded by the attempt count instead

	attempt := 0
	op := func() error {
		attempt++
		if err := p.probeOnce(ctx, target); err != nil {
			p.logger.Debug("readiness probe failed", "url", target, "attempt", attempt, "err", err)
			return err
		}
		return nil
	}

	// attempts-1 retries after the initial attempt.
	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(schedule, p.attempts-1), ctx))
	return err == nil
}

func (p *HTTPProber) probeOnce(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
