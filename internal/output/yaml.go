package output

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/maxvaer/zrprobe/internal/classify"
)

// YAMLWriter writes the categorized report as one YAML document.
type YAMLWriter struct {
	w       io.Writer
	closer  io.Closer
	builder *reportBuilder
}

// NewYAMLWriter creates a YAML output writer.
func NewYAMLWriter(outputFile string) (*YAMLWriter, error) {
	w, closer, err := openOutput(outputFile)
	if err != nil {
		return nil, err
	}
	return &YAMLWriter{w: w, closer: closer, builder: newReportBuilder()}, nil
}

func (y *YAMLWriter) WriteHeader() error { return nil }

func (y *YAMLWriter) WriteRecord(rec *classify.Record) error {
	y.builder.add(rec)
	return nil
}

func (y *YAMLWriter) WriteFooter(stats Stats) error {
	enc := yaml.NewEncoder(y.w)
	enc.SetIndent(2)
	if err := enc.Encode(y.builder.build(stats)); err != nil {
		return err
	}
	return enc.Close()
}

func (y *YAMLWriter) Close() error {
	if y.closer != nil {
		return y.closer.Close()
	}
	return nil
}
