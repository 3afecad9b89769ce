package output

import (
	"github.com/maxvaer/zrprobe/internal/classify"
)

// hostEntry is one host in the categorized report.
type hostEntry struct {
	Host       string `json:"host" yaml:"host"`
	StatusCode int    `json:"status_code" yaml:"status_code"`
	BodySize   int64  `json:"body_size" yaml:"body_size"`
}

type reportStats struct {
	ScanID             string  `json:"scan_id,omitempty" yaml:"scan_id,omitempty"`
	Profile            string  `json:"profile,omitempty" yaml:"profile,omitempty"`
	State              string  `json:"state" yaml:"state"`
	Total              int     `json:"total" yaml:"total"`
	Scanned            int     `json:"scanned" yaml:"scanned"`
	Accessible         int     `json:"accessible" yaml:"accessible"`
	SuccessRate        float64 `json:"success_rate" yaml:"success_rate"`
	BytesUsed          int64   `json:"bytes_used" yaml:"bytes_used"`
	Ceiling            int64   `json:"ceiling" yaml:"ceiling"`
	RequestsMade       int64   `json:"requests_made" yaml:"requests_made"`
	AvgBytesPerRequest float64 `json:"avg_bytes_per_request" yaml:"avg_bytes_per_request"`
	ElapsedSeconds     float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Passes             int     `json:"passes" yaml:"passes"`
}

// report is the document emitted by the JSON and YAML writers. Every
// category is present, with an empty list when no host fell into it.
type report struct {
	Categories map[classify.Category][]hostEntry `json:"categories" yaml:"categories"`
	Resumed    []string                          `json:"resumed,omitempty" yaml:"resumed,omitempty"`
	Stats      reportStats                       `json:"stats" yaml:"stats"`
}

// reportBuilder collects records in arrival order.
type reportBuilder struct {
	cats map[classify.Category][]hostEntry
}

func newReportBuilder() *reportBuilder {
	cats := make(map[classify.Category][]hostEntry, len(classify.All))
	for _, c := range classify.All {
		cats[c] = []hostEntry{}
	}
	return &reportBuilder{cats: cats}
}

func (b *reportBuilder) add(rec *classify.Record) {
	b.cats[rec.Category] = append(b.cats[rec.Category], hostEntry{
		Host:       rec.Host,
		StatusCode: rec.StatusCode,
		BodySize:   rec.BodySize,
	})
}

func (b *reportBuilder) build(stats Stats) report {
	return report{
		Categories: b.cats,
		Resumed:    stats.Resumed,
		Stats: reportStats{
			ScanID:             stats.ScanID,
			Profile:            stats.Profile,
			State:              stats.State,
			Total:              stats.Total,
			Scanned:            stats.Scanned,
			Accessible:         stats.Accessible,
			SuccessRate:        stats.SuccessRate(),
			BytesUsed:          stats.Budget.BytesUsed,
			Ceiling:            stats.Budget.Ceiling,
			RequestsMade:       stats.Budget.RequestsMade,
			AvgBytesPerRequest: stats.Budget.AvgBytesPerRequest,
			ElapsedSeconds:     stats.Budget.Elapsed.Seconds(),
			Passes:             stats.Passes,
		},
	}
}
