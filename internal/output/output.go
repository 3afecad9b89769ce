package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/maxvaer/zrprobe/internal/budget"
	"github.com/maxvaer/zrprobe/internal/classify"
	"github.com/maxvaer/zrprobe/internal/coordinator"
)

// Stats holds the end-of-scan figures printed in every report footer.
type Stats struct {
	ScanID     string
	Profile    string
	State      string
	Total      int
	Scanned    int // resumed hosts included
	Accessible int
	Resumed    []string // accessible hosts carried over from a checkpoint
	Passes     int
	Budget     budget.Stats
}

// NewStats derives the footer figures from a finished scan.
func NewStats(res *coordinator.Result, profile string) Stats {
	return Stats{
		ScanID:     res.ScanID,
		Profile:    profile,
		State:      res.State.String(),
		Total:      res.Total,
		Scanned:    res.Skipped + res.Processed,
		Accessible: len(res.Accessible),
		Resumed:    res.Resumed,
		Passes:     res.Passes,
		Budget:     res.Budget,
	}
}

// SuccessRate is the share of scanned hosts that were accessible, in percent.
func (s Stats) SuccessRate() float64 {
	if s.Scanned == 0 {
		return 0
	}
	return float64(s.Accessible) / float64(s.Scanned) * 100
}

// Writer is implemented by each output format.
type Writer interface {
	WriteHeader() error
	WriteRecord(rec *classify.Record) error
	WriteFooter(stats Stats) error
	Close() error
}

// Options selects and configures a Writer.
type Options struct {
	Format  string // text, json, csv, yaml, sqlite
	File    string // empty writes to stdout
	SortBy  string // host, status, size, category
	Profile string
	NoColor bool
	Quiet   bool
}

// New builds the writer for o.Format, wrapped in a SortedWriter when a sort
// key is set.
func New(o Options) (Writer, error) {
	var (
		w   Writer
		err error
	)
	switch o.Format {
	case "", "text":
		w, err = NewTextWriter(o.File, o.NoColor, o.Quiet)
	case "json":
		w, err = NewJSONWriter(o.File)
	case "yaml":
		w, err = NewYAMLWriter(o.File)
	case "csv":
		w, err = NewCSVWriter(o.File)
	case "sqlite":
		w, err = NewSQLiteWriter(o.File, o.Profile)
	default:
		return nil, fmt.Errorf("unknown output format %q", o.Format)
	}
	if err != nil {
		return nil, err
	}
	if o.SortBy != "" {
		w = NewSortedWriter(w, o.SortBy)
	}
	return w, nil
}

// openOutput returns stdout when path is empty. The closer is nil for stdout.
func openOutput(path string) (io.Writer, io.Closer, error) {
	if path == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f, nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
