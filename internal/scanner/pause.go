package scanner

import (
	"context"
	"sync"
	"time"
)

// Pauser is a cooperative pause gate for worker goroutines. While paused,
// Wait blocks until the scan is resumed or the context is cancelled, so an
// interrupt never gets stuck behind a pause.
type Pauser struct {
	mu          sync.Mutex
	resume      chan struct{} // non-nil while paused, closed on resume
	pausedSince time.Time
	totalPaused time.Duration
}

// NewPauser creates a Pauser in the running state.
func NewPauser() *Pauser {
	return &Pauser{}
}

// Wait blocks while the scan is paused. It returns ctx.Err() when the
// context is cancelled first, nil otherwise.
func (p *Pauser) Wait(ctx context.Context) error {
	p.mu.Lock()
	ch := p.resume
	p.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Toggle flips between paused and running and returns the new paused state.
func (p *Pauser) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resume != nil {
		p.totalPaused += time.Since(p.pausedSince)
		close(p.resume)
		p.resume = nil
		return false
	}
	p.resume = make(chan struct{})
	p.pausedSince = time.Now()
	return true
}

// Resume unpauses the gate if it is paused. It is a no-op otherwise.
func (p *Pauser) Resume() {
	p.mu.Lock()
	paused := p.resume != nil
	p.mu.Unlock()
	if paused {
		p.Toggle()
	}
}

// IsPaused returns whether the scan is currently paused.
func (p *Pauser) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resume != nil
}

// PausedDuration returns the accumulated pause time, including any
// ongoing pause. The progress display subtracts it from the elapsed time.
func (p *Pauser) PausedDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.totalPaused
	if p.resume != nil {
		d += time.Since(p.pausedSince)
	}
	return d
}
