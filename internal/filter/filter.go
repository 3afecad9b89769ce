// Package filter hides classified records from the report. Filters never
// change what is probed, counted or checkpointed.
package filter

import (
	"slices"

	"github.com/maxvaer/zrprobe/internal/classify"
)

// Options lists the report filters. An include list keeps only matching
// records and takes precedence over the exclude list of the same field.
type Options struct {
	IncludeStatus     []int
	ExcludeStatus     []int
	IncludeCategories []string
	ExcludeCategories []string
}

// rule hides a record when hide returns true.
type rule struct {
	field string
	hide  func(rec *classify.Record) bool
}

// Filter is an ordered set of rules over one record field each. The first
// rule that hides a record names the reason.
type Filter struct {
	rules []rule
}

// New builds a filter from the given options. Empty options hide nothing.
func New(o Options) *Filter {
	f := &Filter{}
	add(f, "status", o.IncludeStatus, o.ExcludeStatus, func(rec *classify.Record) int {
		return rec.StatusCode
	})
	add(f, "category", categories(o.IncludeCategories), categories(o.ExcludeCategories),
		func(rec *classify.Record) classify.Category { return rec.Category })
	return f
}

// add registers one field rule. Hosts that never answered have status 0, so
// an include list of status codes hides them.
func add[K comparable](f *Filter, field string, include, exclude []K, key func(*classify.Record) K) {
	switch {
	case len(include) > 0:
		f.rules = append(f.rules, rule{field, func(rec *classify.Record) bool {
			return !slices.Contains(include, key(rec))
		}})
	case len(exclude) > 0:
		f.rules = append(f.rules, rule{field, func(rec *classify.Record) bool {
			return slices.Contains(exclude, key(rec))
		}})
	}
}

func categories(names []string) []classify.Category {
	out := make([]classify.Category, len(names))
	for i, n := range names {
		out[i] = classify.Category(n)
	}
	return out
}

// Len returns the number of active rules.
func (f *Filter) Len() int {
	return len(f.rules)
}

// Apply reports whether the record is hidden and, if so, the field that
// hid it.
func (f *Filter) Apply(rec *classify.Record) (bool, string) {
	for _, r := range f.rules {
		if r.hide(rec) {
			return true, r.field
		}
	}
	return false, ""
}
