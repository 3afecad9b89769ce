package filter

import (
	"testing"

	"github.com/maxvaer/zrprobe/internal/classify"
)

func TestFilter(t *testing.T) {
	full := &classify.Record{StatusCode: 200, Category: classify.Full}
	notFound := &classify.Record{StatusCode: 404, Category: classify.ErrorPage}
	serverErr := &classify.Record{StatusCode: 500, Category: classify.ErrorPage}
	dead := &classify.Record{Category: classify.Dead}

	tests := []struct {
		name   string
		opts   Options
		rules  int
		rec    *classify.Record
		hidden bool
		field  string
	}{
		{"no rules", Options{}, 0, dead, false, ""},
		{"status included", Options{IncludeStatus: []int{200, 301}}, 1, full, false, ""},
		{"status not included", Options{IncludeStatus: []int{200, 301}}, 1, notFound, true, "status"},
		{"no status with include list", Options{IncludeStatus: []int{200}}, 1, dead, true, "status"},
		{"status excluded", Options{ExcludeStatus: []int{404, 500}}, 1, notFound, true, "status"},
		{"status not excluded", Options{ExcludeStatus: []int{404, 500}}, 1, full, false, ""},
		{"include wins over exclude", Options{IncludeStatus: []int{404}, ExcludeStatus: []int{404}}, 1, notFound, false, ""},
		{"category included", Options{IncludeCategories: []string{"full", "medium"}}, 1, full, false, ""},
		{"category not included", Options{IncludeCategories: []string{"full", "medium"}}, 1, dead, true, "category"},
		{"category excluded", Options{ExcludeCategories: []string{"dead"}}, 1, dead, true, "category"},
		{"category not excluded", Options{ExcludeCategories: []string{"dead"}}, 1, serverErr, false, ""},
		{"status checked first", Options{ExcludeStatus: []int{404}, ExcludeCategories: []string{"error_page"}}, 2, notFound, true, "status"},
		{"falls through to category", Options{ExcludeStatus: []int{404}, ExcludeCategories: []string{"error_page"}}, 2, serverErr, true, "category"},
		{"passes both", Options{ExcludeStatus: []int{404}, ExcludeCategories: []string{"error_page"}}, 2, full, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts)
			if f.Len() != tt.rules {
				t.Errorf("Len() = %d, want %d", f.Len(), tt.rules)
			}
			hidden, field := f.Apply(tt.rec)
			if hidden != tt.hidden || field != tt.field {
				t.Errorf("Apply(%d/%s) = %v, %q; want %v, %q", tt.rec.StatusCode, tt.rec.Category, hidden, field, tt.hidden, tt.field)
			}
		})
	}
}
