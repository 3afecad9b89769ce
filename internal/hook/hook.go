// Package hook runs a user command for every accessible host.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maxvaer/zrprobe/internal/classify"
)

// Timeout bounds a single hook invocation.
const Timeout = 30 * time.Second

// QueueSize is how many accessible records may wait for a hook before
// Submit blocks.
const QueueSize = 256

// placeholders maps the command placeholders to the environment variables
// carrying their values.
var placeholders = []struct{ name, env string }{
	{"{host}", "ZRPROBE_HOST"},
	{"{category}", "ZRPROBE_CATEGORY"},
	{"{status}", "ZRPROBE_STATUS"},
	{"{size}", "ZRPROBE_SIZE"},
}

// payload is the JSON document sent to the hook command via stdin.
type payload struct {
	Host       string `json:"host"`
	Category   string `json:"category"`
	StatusCode int    `json:"status_code"`
	BodySize   int64  `json:"body_size"`
	Scheme     string `json:"scheme,omitempty"`
	BytesUsed  int64  `json:"bytes_used"`
}

// Runner executes a shell command for each accessible record.
type Runner struct {
	cmd    string
	out    io.Writer
	logger *slog.Logger
}

// NewRunner creates a hook runner. cmd is the shell command to execute and
// out receives whatever it prints.
func NewRunner(cmd string, out io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{cmd: cmd, out: out, logger: logger}
}

// Run executes the hook command with the record as JSON on stdin. Dead
// hosts are skipped. Errors are logged but do not halt the scan.
func (r *Runner) Run(ctx context.Context, rec *classify.Record) {
	if r == nil || r.cmd == "" || !rec.Category.Accessible() {
		return
	}
	data, err := json.Marshal(payload{
		Host:       rec.Host,
		Category:   string(rec.Category),
		StatusCode: rec.StatusCode,
		BodySize:   rec.BodySize,
		Scheme:     rec.Scheme,
		BytesUsed:  rec.BytesUsed,
	})
	if err != nil {
		r.logger.Warn("hook payload", slog.String("host", rec.Host), slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	shell, args := shellCommand()
	cmd := exec.CommandContext(ctx, shell, append(args, r.expand(runtime.GOOS))...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Env = append(os.Environ(), env(rec)...)

	output, err := cmd.CombinedOutput()
	if len(output) > 0 && r.out != nil {
		r.out.Write(output)
	}
	if err != nil {
		r.logger.Warn("hook failed", slog.String("host", rec.Host), slog.Any("error", err))
	}
}

// expand turns {host}, {category}, {status} and {size} into references to
// the matching environment variables, so record values never become part
// of the command text the shell parses.
func (r *Runner) expand(goos string) string {
	pairs := make([]string, 0, 2*len(placeholders))
	for _, p := range placeholders {
		ref := `"$` + p.env + `"`
		if goos == "windows" {
			ref = "%" + p.env + "%"
		}
		pairs = append(pairs, p.name, ref)
	}
	return strings.NewReplacer(pairs...).Replace(r.cmd)
}

func env(rec *classify.Record) []string {
	values := []string{
		rec.Host,
		string(rec.Category),
		strconv.Itoa(rec.StatusCode),
		strconv.FormatInt(rec.BodySize, 10),
	}
	out := make([]string, len(placeholders))
	for i, p := range placeholders {
		out[i] = p.env + "=" + values[i]
	}
	return out
}

// Queue runs hooks on background workers so a slow command never holds up
// the caller. Records are handed over in order; with one worker they also
// run in order.
type Queue struct {
	runner  *Runner
	ctx     context.Context
	records chan classify.Record
	wg      sync.WaitGroup
}

// Start launches workers goroutines that run the hook for submitted
// records. A nil runner returns a nil queue, which ignores every call.
func (r *Runner) Start(ctx context.Context, workers int) *Queue {
	if r == nil || r.cmd == "" {
		return nil
	}
	q := &Queue{runner: r, ctx: ctx, records: make(chan classify.Record, QueueSize)}
	for range max(workers, 1) {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for rec := range q.records {
				q.runner.Run(q.ctx, &rec)
			}
		}()
	}
	return q
}

// Submit queues an accessible record. It blocks only while QueueSize
// records are already pending.
func (q *Queue) Submit(rec *classify.Record) {
	if q == nil || !rec.Category.Accessible() {
		return
	}
	q.records <- *rec
}

// Close waits for every queued hook to finish. Submit must not be called
// afterwards.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	close(q.records)
	q.wg.Wait()
}

func shellCommand() (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}
	}
	return "sh", []string{"-c"}
}
