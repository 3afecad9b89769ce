package budget

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of the tracker's counters.
type Stats struct {
	BytesUsed          int64
	RequestsMade       int64
	Elapsed            time.Duration
	AvgBytesPerRequest float64
	Ceiling            int64
}

// Tracker accumulates the bytes and requests spent by a scan and enforces a
// hard data ceiling. A ceiling of 0 disables the cap. All methods are safe
// for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	ceiling  int64
	bytes    int64
	requests int64
	exceeded bool
	start    time.Time
}

// New creates a tracker that starts its clock immediately.
func New(ceiling int64) *Tracker {
	if ceiling < 0 {
		ceiling = 0
	}
	return &Tracker{ceiling: ceiling, start: time.Now()}
}

// Add charges n bytes against the budget. It returns false once the running
// total is above the ceiling; the result stays false for every later call
// because the total never decreases.
func (t *Tracker) Add(n int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > 0 {
		t.bytes += n
	}
	if t.ceiling > 0 && t.bytes > t.ceiling {
		t.exceeded = true
	}
	return !t.exceeded
}

// RecordRequest counts one network request.
func (t *Tracker) RecordRequest() {
	t.mu.Lock()
	t.requests++
	t.mu.Unlock()
}

// Exceeded reports whether the ceiling has been crossed.
func (t *Tracker) Exceeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exceeded
}

// Remaining returns how many bytes may still be spent, or -1 when unbounded.
func (t *Tracker) Remaining() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ceiling == 0 {
		return -1
	}
	if t.bytes >= t.ceiling {
		return 0
	}
	return t.ceiling - t.bytes
}

// Stats returns a consistent snapshot of the counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{
		BytesUsed:    t.bytes,
		RequestsMade: t.requests,
		Elapsed:      time.Since(t.start),
		Ceiling:      t.ceiling,
	}
	if t.requests > 0 {
		s.AvgBytesPerRequest = float64(t.bytes) / float64(t.requests)
	}
	return s
}
