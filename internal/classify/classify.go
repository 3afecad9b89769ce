// Package classify turns probe results into reachability categories.
package classify

import (
	"time"

	"github.com/maxvaer/zrprobe/internal/scanner"
)

// Category is the reachability bucket of a host.
type Category string

const (
	Full      Category = "full"
	Medium    Category = "medium"
	Small     Category = "small"
	Empty     Category = "empty"
	ErrorPage Category = "error_page"
	PortOnly  Category = "port_only"
	Dead      Category = "dead"
)

// All lists every category in report order, richest first.
var All = []Category{Full, Medium, Small, Empty, ErrorPage, PortOnly, Dead}

// Accessible reports whether traffic reached the host at all.
func (c Category) Accessible() bool {
	return c != Dead
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range All {
		if k == c {
			return true
		}
	}
	return false
}

// Thresholds are the body size boundaries in bytes.
type Thresholds struct {
	Small int64 // sizes below this are "small"
	Full  int64 // sizes at or above this are "full"
}

// DefaultThresholds returns 1 KiB / 5 KiB.
func DefaultThresholds() Thresholds {
	return Thresholds{Small: 1024, Full: 5120}
}

// Classify maps a probe result to a category. It has no side effects.
func Classify(r scanner.ProbeResult, t Thresholds) Category {
	switch {
	case r.StatusCode >= 400:
		return ErrorPage
	case r.StatusCode > 0:
		size := r.BodySize()
		switch {
		case size >= t.Full:
			return Full
		case size >= t.Small:
			return Medium
		case size > 0:
			return Small
		default:
			return Empty
		}
	case r.PortOpen:
		return PortOnly
	default:
		return Dead
	}
}

// Record is the classified, reportable view of one host.
type Record struct {
	Host       string          `json:"host" yaml:"host"`
	Category   Category        `json:"category" yaml:"category"`
	StatusCode int             `json:"status_code" yaml:"status_code"`
	BodySize   int64           `json:"body_size" yaml:"body_size"`
	Scheme     string          `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Method     string          `json:"method,omitempty" yaml:"method,omitempty"`
	Latency    time.Duration   `json:"latency_ns" yaml:"latency"`
	Outcome    scanner.Outcome `json:"outcome" yaml:"outcome"`
	Reason     string          `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attempt    int             `json:"attempt" yaml:"attempt"`
	BytesUsed  int64           `json:"bytes_used" yaml:"bytes_used"`
}

// NewRecord classifies r and builds its record.
func NewRecord(r scanner.ProbeResult, t Thresholds) Record {
	rec := Record{
		Host:       r.Host,
		Category:   Classify(r, t),
		StatusCode: r.StatusCode,
		Scheme:     r.Scheme,
		Method:     r.Method,
		Latency:    r.Latency,
		Outcome:    r.Outcome,
		Reason:     r.Reason,
		Attempt:    r.Attempt,
		BytesUsed:  r.BytesUsed,
	}
	if r.Responded() {
		rec.BodySize = r.BodySize()
	}
	return rec
}

// Retryable reports whether the host showed no traffic for a reason that
// another attempt might change.
func (r Record) Retryable() bool {
	return r.Category == Dead && r.Outcome.Retryable()
}
