package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/maxvaer/zrprobe/internal/classify"
)

// CSVWriter writes one row per host. The stats are left out so the file
// stays a plain table.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter creates a CSV output writer.
func NewCSVWriter(outputFile string) (*CSVWriter, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{w: csv.NewWriter(w), closer: closer}, nil
}

func (c *CSVWriter) WriteHeader() error {
	return c.w.Write([]string{
		"host", "category", "status_code", "body_size",
		"scheme", "method", "outcome", "reason", "attempt", "bytes_used", "latency_ms",
	})
}

func (c *CSVWriter) WriteRecord(rec *classify.Record) error {
	return c.w.Write([]string{
		rec.Host,
		string(rec.Category),
		strconv.Itoa(rec.StatusCode),
		strconv.FormatInt(rec.BodySize, 10),
		rec.Scheme,
		rec.Method,
		string(rec.Outcome),
		rec.Reason,
		strconv.Itoa(rec.Attempt),
		strconv.FormatInt(rec.BytesUsed, 10),
		strconv.FormatInt(rec.Latency.Milliseconds(), 10),
	})
}

func (c *CSVWriter) WriteFooter(_ Stats) error {
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
