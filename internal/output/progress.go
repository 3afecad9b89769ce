package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/maxvaer/zrprobe/internal/coordinator"
)

// Progress renders scan progress on a terminal writer. A nil *Progress is
// valid and draws nothing.
type Progress struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	paused bool
}

// NewProgress creates a bar for total hosts. It returns nil when disabled.
func NewProgress(total int, w io.Writer, enabled bool) *Progress {
	if !enabled || total <= 0 {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("hosts"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetDescription("probing"),
	)
	return &Progress{bar: bar}
}

// Update moves the bar to the event's position.
func (p *Progress) Update(ev coordinator.Event) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.bar.Describe(describe(ev))
	}
	_ = p.bar.Set(ev.Completed)
}

// SetPaused marks the bar as paused until the next SetPaused(false).
func (p *Progress) SetPaused(paused bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
	if paused {
		p.bar.Describe("PAUSED (press Enter to resume)")
	} else {
		p.bar.Describe("probing")
	}
}

// Finish clears the bar from the terminal.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}

func describe(ev coordinator.Event) string {
	s := fmt.Sprintf("accessible %d | %s", ev.Accessible, formatBytes(ev.BytesUsed))
	if ev.Pass > 0 {
		s = fmt.Sprintf("retry %d | %s", ev.Pass, s)
	}
	return s
}
