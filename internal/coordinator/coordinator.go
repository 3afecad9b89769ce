// Package coordinator drives a scan: it dispatches hosts to the worker pool,
// aggregates results, enforces the byte budget and keeps the checkpoint
// current.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/maxvaer/zrprobe/internal/budget"
	"github.com/maxvaer/zrprobe/internal/checkpoint"
	"github.com/maxvaer/zrprobe/internal/classify"
	"github.com/maxvaer/zrprobe/internal/scanner"
)

var (
	// ErrNoHosts is returned when Run is given an empty host list.
	ErrNoHosts = errors.New("no hosts to scan")
	// ErrAlreadyRun is returned when Run is called a second time.
	ErrAlreadyRun = errors.New("coordinator has already run")
)

// DefaultCheckpointInterval is how many completions pass between saves.
const DefaultCheckpointInterval = 10

// State is the lifecycle state of a scan.
type State int32

const (
	Idle State = iota
	Running
	Completed
	Interrupted
	BudgetExceeded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	case BudgetExceeded:
		return "budget_exceeded"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Completed || s == Interrupted || s == BudgetExceeded
}

// Config holds the coordinator settings.
type Config struct {
	Workers            int
	Thresholds         classify.Thresholds
	Retries            int           // extra passes over dead hosts
	RetryDelay         time.Duration // pause before each extra pass
	CheckpointInterval int
	Throttler          *scanner.Throttler
	Pauser             *scanner.Pauser
	OnEvent            func(Event) // called from the aggregator goroutine
}

// Event reports one completed probe.
type Event struct {
	Completed  int // hosts done, resumed ones included
	Total      int
	Accessible int
	BytesUsed  int64
	Elapsed    time.Duration
	Pass       int
	Record     classify.Record
}

// Result is the frozen outcome of a scan.
type Result struct {
	State      State
	Categories map[classify.Category][]classify.Record
	Records    []classify.Record // completion order, one per host
	Accessible []string          // resumed hosts first, then in completion order
	Resumed    []string          // accessible hosts carried over from the checkpoint
	Processed  int               // hosts probed in this run
	Skipped    int               // hosts before the resume cursor
	Cursor     int
	Total      int
	Budget     budget.Stats
	ScanID     string
	Passes     int
}

// Coordinator runs a single scan. It is not reusable.
type Coordinator struct {
	cfg     Config
	prober  scanner.Prober
	tracker *budget.Tracker
	store   checkpoint.Store
	logger  *slog.Logger

	state atomic.Int32
	ran   atomic.Bool
}

// New creates a coordinator. store and logger may be nil.
func New(cfg Config, prober scanner.Prober, tracker *budget.Tracker, store checkpoint.Store, logger *slog.Logger) *Coordinator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CheckpointInterval < 1 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	if cfg.Thresholds == (classify.Thresholds{}) {
		cfg.Thresholds = classify.DefaultThresholds()
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if tracker == nil {
		tracker = budget.New(0)
	}
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		cfg:     cfg,
		prober:  prober,
		tracker: tracker,
		store:   store,
		logger:  logger,
	}
}

// State returns the current lifecycle state. Safe for concurrent use.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Info("scan state changed", slog.String("from", old.String()), slog.String("state", s.String()))
	}
}

// Run scans hosts and blocks until the scan reaches a terminal state. When
// resume matches the host list, hosts before its cursor are skipped and its
// accessible hosts are carried into the result without being probed again.
// Cancelling ctx stops dispatch; probes already running are allowed to
// finish and are included in the result.
func (c *Coordinator) Run(ctx context.Context, hosts []string, resume *checkpoint.Checkpoint) (*Result, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}
	if !c.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	c.setState(Running)

	s := newScanState(hosts)
	scanID := uuid.NewString()
	if resume != nil {
		if err := c.applyResume(s, resume); err != nil {
			c.logger.Warn("ignoring checkpoint", slog.Any("error", err))
		} else if resume.ScanID != "" {
			scanID = resume.ScanID
		}
	}
	s.scanID = scanID

	c.logger.Info("scan started",
		slog.String("scan_id", scanID),
		slog.Int("total", s.total),
		slog.Int("cursor", s.cursor),
		slog.Int("workers", c.cfg.Workers))

	jobs := make([]scanner.Job, 0, s.total-s.cursor)
	for i := s.cursor; i < s.total; i++ {
		jobs = append(jobs, scanner.Job{Index: i, Host: hosts[i], Attempt: 1})
	}

	passes := 0
	if len(jobs) > 0 {
		c.runPass(ctx, s, jobs, 1)
		passes = 1
	}

	if c.State() == Running && c.cfg.Retries > 0 {
		bo := backoff.NewConstantBackOff(c.cfg.RetryDelay)
		for attempt := 2; attempt <= c.cfg.Retries+1; attempt++ {
			retry := s.retryJobs(attempt)
			if len(retry) == 0 {
				break
			}
			c.logger.Info("retrying dead hosts", slog.Int("hosts", len(retry)), slog.Int("attempt", attempt))
			if !sleepCtx(ctx, bo.NextBackOff()) {
				c.setState(Interrupted)
				break
			}
			c.runPass(ctx, s, retry, attempt)
			passes++
			if c.State() != Running {
				break
			}
		}
	}

	if c.State() == Running {
		c.setState(Completed)
	}

	final := c.State()
	if final == Completed {
		if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("failed to clear checkpoint", slog.Any("error", err))
		}
	} else {
		c.saveCheckpoint(ctx, s)
	}

	res := s.result(final, c.tracker.Stats())
	res.Passes = passes
	c.logger.Info("scan finished",
		slog.String("state", final.String()),
		slog.Int("processed", res.Processed),
		slog.Int("accessible", len(res.Accessible)),
		slog.Int64("bytes", res.Budget.BytesUsed))
	return res, nil
}

func (c *Coordinator) applyResume(s *scanState, cp *checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	if cp.Total != s.total {
		return errors.New("checkpoint was written for a different host list")
	}
	s.resume(cp.Cursor, cp.AccessibleHosts)
	c.logger.Info("resuming scan",
		slog.Int("cursor", cp.Cursor),
		slog.Int("accessible", len(s.resumed)))
	return nil
}

// runPass dispatches jobs and aggregates their completions. The calling
// goroutine is the only writer of s.
func (c *Coordinator) runPass(ctx context.Context, s *scanState, jobs []scanner.Job, pass int) {
	results := scanner.RunWorkerPool(ctx, c.prober, jobs, scanner.WorkerConfig{
		Threads:   c.cfg.Workers,
		Throttler: c.cfg.Throttler,
		Pauser:    c.cfg.Pauser,
		Allow:     func() bool { return !c.tracker.Exceeded() },
	})

	done := ctx.Done()
	sinceSave := 0
	for {
		select {
		case comp, ok := <-results:
			if !ok {
				c.settle(ctx)
				return
			}
			rec := classify.NewRecord(comp.Result, c.cfg.Thresholds)
			s.record(comp.Job, rec)
			c.logger.Debug("probed",
				slog.String("host", rec.Host),
				slog.String("category", string(rec.Category)),
				slog.Int("status", rec.StatusCode),
				slog.String("outcome", string(rec.Outcome)),
				slog.Int("attempt", rec.Attempt))

			if c.cfg.OnEvent != nil {
				stats := c.tracker.Stats()
				c.cfg.OnEvent(Event{
					Completed:  s.done(),
					Total:      s.total,
					Accessible: len(s.accessible),
					BytesUsed:  stats.BytesUsed,
					Elapsed:    stats.Elapsed,
					Pass:       pass,
					Record:     rec,
				})
			}

			if c.tracker.Exceeded() && c.State() == Running {
				c.setState(BudgetExceeded)
				c.logger.Warn("data ceiling reached, stopping dispatch",
					slog.Int64("bytes", c.tracker.Stats().BytesUsed))
				c.saveCheckpoint(ctx, s)
				sinceSave = 0
				continue
			}

			sinceSave++
			if sinceSave >= c.cfg.CheckpointInterval {
				c.saveCheckpoint(ctx, s)
				sinceSave = 0
			}
		case <-done:
			done = nil
			if c.State() == Running {
				c.setState(Interrupted)
			}
			c.saveCheckpoint(ctx, s)
			sinceSave = 0
		}
	}
}

// settle moves a pass that ended while still Running into the terminal
// state its cause implies. A pass can drain without the aggregator ever
// observing ctx.Done when nothing was dispatched.
func (c *Coordinator) settle(ctx context.Context) {
	if c.State() != Running {
		return
	}
	switch {
	case c.tracker.Exceeded():
		c.setState(BudgetExceeded)
	case ctx.Err() != nil:
		c.setState(Interrupted)
	}
}

// saveCheckpoint writes the current progress. Failures are logged and
// otherwise ignored; the scan itself never fails because of them.
func (c *Coordinator) saveCheckpoint(ctx context.Context, s *scanState) {
	cp := s.checkpoint()
	if err := c.store.Save(context.WithoutCancel(ctx), cp); err != nil {
		c.logger.Warn("failed to save checkpoint", slog.Int("cursor", cp.Cursor), slog.Any("error", err))
		return
	}
	c.logger.Debug("checkpoint saved", slog.Int("cursor", cp.Cursor), slog.Int("accessible", len(cp.AccessibleHosts)))
}

// sleepCtx waits for d or until ctx is cancelled. It reports whether the
// full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
