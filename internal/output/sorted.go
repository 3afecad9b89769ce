package output

import (
	"slices"
	"sort"

	"github.com/maxvaer/zrprobe/internal/classify"
)

// SortedWriter buffers records and replays them sorted by a field when
// WriteFooter is called. It wraps any other Writer.
type SortedWriter struct {
	inner   Writer
	sortBy  string
	records []*classify.Record
}

// NewSortedWriter wraps inner and buffers records for sorted replay.
func NewSortedWriter(inner Writer, sortBy string) *SortedWriter {
	return &SortedWriter{inner: inner, sortBy: sortBy}
}

func (w *SortedWriter) WriteHeader() error {
	return w.inner.WriteHeader()
}

func (w *SortedWriter) WriteRecord(rec *classify.Record) error {
	cpy := *rec
	w.records = append(w.records, &cpy)
	return nil
}

func (w *SortedWriter) WriteFooter(stats Stats) error {
	sort.SliceStable(w.records, func(i, j int) bool {
		a, b := w.records[i], w.records[j]
		switch w.sortBy {
		case "host":
			return a.Host < b.Host
		case "status":
			return a.StatusCode < b.StatusCode
		case "size":
			return a.BodySize > b.BodySize
		case "category":
			return categoryRank(a.Category) < categoryRank(b.Category)
		default:
			return false
		}
	})
	for _, r := range w.records {
		if err := w.inner.WriteRecord(r); err != nil {
			return err
		}
	}
	return w.inner.WriteFooter(stats)
}

func (w *SortedWriter) Close() error {
	return w.inner.Close()
}

func categoryRank(c classify.Category) int {
	return slices.Index(classify.All, c)
}
