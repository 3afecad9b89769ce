package scanner

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

const (
	// backoffFloor is the rate the throttler drops to on the first signal
	// when the configured rate is unlimited.
	backoffFloor rate.Limit = 2
	// minLimit bounds the slow-down at one request every 30 seconds.
	minLimit rate.Limit = 1.0 / 30
	// errorStreak is how many consecutive network errors count as a
	// rate-limit signal.
	errorStreak = 3
)

// Throttler paces probes with a token bucket. With adaptive mode enabled it
// halves the rate on 429/503 responses or a streak of network errors and
// doubles it back toward the configured rate once responses are healthy.
type Throttler struct {
	limiter  *rate.Limiter
	base     rate.Limit
	adaptive bool
	logger   *slog.Logger

	mu          sync.Mutex
	consecutive int
}

// NewThrottler creates a throttler allowing rps probes per second across
// all workers. rps <= 0 means unlimited.
func NewThrottler(rps float64, adaptive bool, logger *slog.Logger) *Throttler {
	base := rate.Inf
	if rps > 0 {
		base = rate.Limit(rps)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Throttler{
		limiter:  rate.NewLimiter(base, 1),
		base:     base,
		adaptive: adaptive,
		logger:   logger,
	}
}

// Wait blocks until the next probe may start. A nil throttler never blocks.
func (t *Throttler) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// Limit returns the current rate.
func (t *Throttler) Limit() rate.Limit {
	return t.limiter.Limit()
}

// Record feeds a probe result into the adaptive logic.
func (t *Throttler) Record(r ProbeResult) {
	if t == nil || !t.adaptive {
		return
	}
	switch {
	case r.Responded():
		t.recordStatus(r.StatusCode)
	case r.Outcome.Retryable():
		t.recordError()
	}
}

func (t *Throttler) recordStatus(code int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable {
		t.consecutive++
		t.slowDown("rate limited", slog.Int("status", code))
		return
	}
	if t.consecutive > 0 {
		t.consecutive = 0
		t.recover()
	}
}

func (t *Throttler) recordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive++
	if t.consecutive >= errorStreak {
		t.slowDown("multiple errors", slog.Int("streak", t.consecutive))
	}
}

// slowDown must be called with mu held.
func (t *Throttler) slowDown(reason string, attr slog.Attr) {
	cur := t.limiter.Limit()
	next := cur / 2
	if cur == rate.Inf {
		next = backoffFloor
	}
	if next < minLimit {
		next = minLimit
	}
	if next == cur {
		return
	}
	t.limiter.SetLimit(next)
	t.logger.Warn("backing off", slog.String("reason", reason), attr, slog.Float64("rate", float64(next)))
}

// recover must be called with mu held.
func (t *Throttler) recover() {
	cur := t.limiter.Limit()
	if cur == t.base {
		return
	}
	next := cur * 2
	if t.base == rate.Inf {
		if next > backoffFloor {
			next = rate.Inf
		}
	} else if next > t.base {
		next = t.base
	}
	t.limiter.SetLimit(next)
	t.logger.Info("recovering", slog.Float64("rate", float64(next)))
}
