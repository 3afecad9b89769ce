package coordinator

import (
	"time"

	"github.com/maxvaer/zrprobe/internal/budget"
	"github.com/maxvaer/zrprobe/internal/checkpoint"
	"github.com/maxvaer/zrprobe/internal/classify"
	"github.com/maxvaer/zrprobe/internal/scanner"
)

// scanState is owned by the aggregator goroutine and needs no locking.
type scanState struct {
	hosts     []string
	total     int
	processed []bool
	cursor    int // lowest index not yet processed

	records []classify.Record
	byHost  map[string]int // host -> index into records

	accessible    []string
	accessibleSet map[string]struct{}
	resumed       []string
	resumedCount  int // hosts before the resume cursor

	scanID string
}

func newScanState(hosts []string) *scanState {
	return &scanState{
		hosts:         hosts,
		total:         len(hosts),
		processed:     make([]bool, len(hosts)),
		byHost:        make(map[string]int, len(hosts)),
		accessibleSet: make(map[string]struct{}),
	}
}

func (s *scanState) resume(cursor int, accessible []string) {
	for i := 0; i < cursor; i++ {
		s.processed[i] = true
	}
	s.cursor = cursor
	s.resumedCount = cursor
	for _, h := range accessible {
		if s.addAccessible(h) {
			s.resumed = append(s.resumed, h)
		}
	}
}

func (s *scanState) addAccessible(host string) bool {
	if _, ok := s.accessibleSet[host]; ok {
		return false
	}
	s.accessibleSet[host] = struct{}{}
	s.accessible = append(s.accessible, host)
	return true
}

// record stores the result of a job. A retry replaces the earlier record
// of the same host in place.
func (s *scanState) record(job scanner.Job, rec classify.Record) {
	if i, ok := s.byHost[rec.Host]; ok {
		s.records[i] = rec
	} else {
		s.byHost[rec.Host] = len(s.records)
		s.records = append(s.records, rec)
	}
	if rec.Category.Accessible() {
		s.addAccessible(rec.Host)
	}

	if job.Index >= 0 && job.Index < s.total && !s.processed[job.Index] {
		s.processed[job.Index] = true
		for s.cursor < s.total && s.processed[s.cursor] {
			s.cursor++
		}
	}
}

// done counts hosts that need no further first-pass work.
func (s *scanState) done() int {
	return s.resumedCount + len(s.records)
}

// retryJobs lists the dead hosts worth another attempt, in input order.
func (s *scanState) retryJobs(attempt int) []scanner.Job {
	var jobs []scanner.Job
	for i, h := range s.hosts {
		if !s.processed[i] {
			continue
		}
		idx, ok := s.byHost[h]
		if !ok || !s.records[idx].Retryable() {
			continue
		}
		jobs = append(jobs, scanner.Job{Index: i, Host: h, Attempt: attempt})
	}
	return jobs
}

func (s *scanState) checkpoint() *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		Cursor:          s.cursor,
		Total:           s.total,
		AccessibleHosts: append([]string{}, s.accessible...),
		Timestamp:       time.Now().UTC().Truncate(time.Second),
		ScanID:          s.scanID,
	}
}

func (s *scanState) result(state State, stats budget.Stats) *Result {
	res := &Result{
		State:      state,
		Categories: make(map[classify.Category][]classify.Record),
		Records:    append([]classify.Record(nil), s.records...),
		Accessible: append([]string(nil), s.accessible...),
		Resumed:    append([]string(nil), s.resumed...),
		Processed:  len(s.records),
		Skipped:    s.resumedCount,
		Cursor:     s.cursor,
		Total:      s.total,
		Budget:     stats,
		ScanID:     s.scanID,
	}
	for _, rec := range s.records {
		res.Categories[rec.Category] = append(res.Categories[rec.Category], rec)
	}
	return res
}
