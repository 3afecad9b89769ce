package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/maxvaer/zrprobe/internal/classify"
)

// TextWriter writes one colored line per host and a category summary.
type TextWriter struct {
	w      io.Writer
	closer io.Closer
	quiet  bool
	colors map[classify.Category]*color.Color
	dim    *color.Color
	byCat  map[classify.Category][]classify.Record
}

// NewTextWriter creates a text output writer. If outputFile is empty, stdout
// is used. Colors are never written to a file.
func NewTextWriter(outputFile string, noColor, quiet bool) (*TextWriter, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	noColor = noColor || outputFile != ""
	t := &TextWriter{
		w:      w,
		closer: closer,
		quiet:  quiet,
		colors: categoryColors(noColor),
		dim:    color.New(color.Faint),
		byCat:  make(map[classify.Category][]classify.Record),
	}
	if noColor {
		t.dim.DisableColor()
	}
	return t, nil
}

func categoryColors(noColor bool) map[classify.Category]*color.Color {
	m := map[classify.Category]*color.Color{
		classify.Full:      color.New(color.FgGreen, color.Bold),
		classify.Medium:    color.New(color.FgCyan),
		classify.Small:     color.New(color.FgBlue),
		classify.Empty:     color.New(color.FgWhite),
		classify.ErrorPage: color.New(color.FgYellow),
		classify.PortOnly:  color.New(color.FgMagenta),
		classify.Dead:      color.New(color.FgRed),
	}
	if noColor {
		for _, c := range m {
			c.DisableColor()
		}
	}
	return m
}

func (t *TextWriter) WriteHeader() error {
	if t.quiet {
		return nil
	}
	_, err := t.dim.Fprintf(t.w, "%-11s Code      Size  Host\n", "Category")
	return err
}

func (t *TextWriter) WriteRecord(rec *classify.Record) error {
	t.byCat[rec.Category] = append(t.byCat[rec.Category], *rec)
	if t.quiet {
		if !rec.Category.Accessible() {
			return nil
		}
		_, err := fmt.Fprintln(t.w, rec.Host)
		return err
	}

	code := "  -"
	if rec.StatusCode > 0 {
		code = fmt.Sprintf("%3d", rec.StatusCode)
	}
	extra := ""
	if rec.Category == classify.Dead && rec.Reason != "" {
		extra = fmt.Sprintf(" (%s: %s)", rec.Outcome, rec.Reason)
	}
	c := t.colors[rec.Category]
	_, err := fmt.Fprintf(t.w, "%s %s  %8d  %s%s\n",
		c.Sprintf("%-11s", rec.Category), code, rec.BodySize, rec.Host, t.dim.Sprint(extra))
	return err
}

func (t *TextWriter) WriteFooter(stats Stats) error {
	if t.quiet {
		return nil
	}
	PrintSummary(t.w, t.byCat, len(stats.Resumed), t.colors)
	_, err := fmt.Fprintf(t.w,
		"\nScanned: %d/%d | Accessible: %d (%.1f%%) | Data: %s | Requests: %d | %.0f B/req | Duration: %s | State: %s\n",
		stats.Scanned, stats.Total,
		stats.Accessible, stats.SuccessRate(),
		formatBytes(stats.Budget.BytesUsed),
		stats.Budget.RequestsMade,
		stats.Budget.AvgBytesPerRequest,
		round(stats.Budget.Elapsed),
		stats.State,
	)
	return err
}

func (t *TextWriter) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
