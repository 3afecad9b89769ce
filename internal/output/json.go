package output

import (
	"encoding/json"
	"io"

	"github.com/maxvaer/zrprobe/internal/classify"
)

// JSONWriter writes the categorized report as one JSON document.
type JSONWriter struct {
	w       io.Writer
	closer  io.Closer
	builder *reportBuilder
}

// NewJSONWriter creates a JSON output writer.
func NewJSONWriter(outputFile string) (*JSONWriter, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{w: w, closer: closer, builder: newReportBuilder()}, nil
}

func (j *JSONWriter) WriteHeader() error { return nil }

func (j *JSONWriter) WriteRecord(rec *classify.Record) error {
	j.builder.add(rec)
	return nil
}

func (j *JSONWriter) WriteFooter(stats Stats) error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(j.builder.build(stats))
}

func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
