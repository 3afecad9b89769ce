package runner

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/maxvaer/zrprobe/internal/checkpoint"
	"github.com/maxvaer/zrprobe/internal/config"
)

// testOpts loads options the way the CLI does, with every file placed in
// a temp dir.
func testOpts(t *testing.T, hosts []string, args ...string) *config.Options {
	t.Helper()
	dir := t.TempDir()
	fs := pflag.NewFlagSet("zrprobe", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	base := []string{
		"--quiet",
		"--no-color",
		"--timeout", "2s",
		"--format", "json",
		"--output", filepath.Join(dir, "report.json"),
		"--accessible-out", filepath.Join(dir, "accessible.txt"),
		"--checkpoint-file", filepath.Join(dir, "state.json"),
	}
	if err := fs.Parse(append(base, args...)); err != nil {
		t.Fatal(err)
	}
	opts, err := config.Load(fs)
	if err != nil {
		t.Fatal(err)
	}
	opts.Hosts = hosts
	return opts
}

type reportDoc struct {
	Categories map[string][]struct {
		Host       string `json:"host"`
		StatusCode int    `json:"status_code"`
		BodySize   int64  `json:"body_size"`
	} `json:"categories"`
	Resumed []string `json:"resumed"`
	Stats   struct {
		State      string `json:"state"`
		Total      int    `json:"total"`
		Scanned    int    `json:"scanned"`
		Accessible int    `json:"accessible"`
	} `json:"stats"`
}

func readReport(t *testing.T, opts *config.Options) reportDoc {
	t.Helper()
	data, err := os.ReadFile(opts.OutputFile)
	if err != nil {
		t.Fatal(err)
	}
	var doc reportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decoding report: %v\n%s", err, data)
	}
	return doc
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Fields(string(data))
}

// fullServer answers every request with a 6000 byte page.
func fullServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "6000")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			w.Write([]byte(strings.Repeat("x", 6000)))
		}
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String()
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestBasicScan(t *testing.T) {
	live := fullServer(t)
	dead := closedAddr(t)
	opts := testOpts(t, []string{live, dead})

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	doc := readReport(t, opts)
	if doc.Stats.State != "completed" {
		t.Errorf("state = %q, want completed", doc.Stats.State)
	}
	if len(doc.Categories["full"]) != 1 || doc.Categories["full"][0].Host != live {
		t.Errorf("full = %+v, want [%s]", doc.Categories["full"], live)
	}
	if len(doc.Categories["dead"]) != 1 || doc.Categories["dead"][0].Host != dead {
		t.Errorf("dead = %+v, want [%s]", doc.Categories["dead"], dead)
	}
	if got := readLines(t, opts.AccessibleOut); len(got) != 1 || got[0] != live {
		t.Errorf("accessible export = %v, want [%s]", got, live)
	}
	if _, err := os.Stat(opts.CheckpointFile); !os.IsNotExist(err) {
		t.Errorf("checkpoint should be cleared after a completed scan, stat err = %v", err)
	}
}

func TestBudgetExceededThenResume(t *testing.T) {
	hosts := []string{fullServer(t), fullServer(t), fullServer(t)}
	opts := testOpts(t, hosts, "--threads", "1", "--ceiling", "300")

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	doc := readReport(t, opts)
	if doc.Stats.State != "budget_exceeded" {
		t.Fatalf("state = %q, want budget_exceeded", doc.Stats.State)
	}
	if doc.Stats.Scanned != 1 {
		t.Errorf("scanned = %d, want 1", doc.Stats.Scanned)
	}

	cp, err := checkpoint.NewFileStore(opts.CheckpointFile).Load(context.Background())
	if err != nil || cp == nil {
		t.Fatalf("checkpoint not saved: %v", err)
	}
	if cp.Cursor != 1 || cp.Total != 3 {
		t.Errorf("checkpoint cursor/total = %d/%d, want 1/3", cp.Cursor, cp.Total)
	}

	// Same files, no ceiling: picks up at host 2.
	resumed := testOpts(t, hosts, "--threads", "1", "--ceiling", "0")
	resumed.OutputFile = opts.OutputFile
	resumed.AccessibleOut = opts.AccessibleOut
	resumed.CheckpointFile = opts.CheckpointFile
	if err := Run(context.Background(), resumed); err != nil {
		t.Fatal(err)
	}

	doc = readReport(t, resumed)
	if doc.Stats.State != "completed" || doc.Stats.Scanned != 3 {
		t.Errorf("state/scanned = %s/%d, want completed/3", doc.Stats.State, doc.Stats.Scanned)
	}
	if len(doc.Categories["full"]) != 2 {
		t.Errorf("probed %d hosts after resume, want 2", len(doc.Categories["full"]))
	}
	if len(doc.Resumed) != 1 || doc.Resumed[0] != hosts[0] {
		t.Errorf("resumed = %v, want [%s]", doc.Resumed, hosts[0])
	}
	if got := readLines(t, resumed.AccessibleOut); len(got) != 3 || got[0] != hosts[0] {
		t.Errorf("accessible export = %v", got)
	}
	if _, err := os.Stat(opts.CheckpointFile); !os.IsNotExist(err) {
		t.Errorf("checkpoint should be cleared, stat err = %v", err)
	}
}

func TestFreshIgnoresCheckpoint(t *testing.T) {
	live := fullServer(t)
	opts := testOpts(t, []string{live}, "--fresh")

	stale := &checkpoint.Checkpoint{Cursor: 1, Total: 1, AccessibleHosts: []string{"ghost.example"}}
	if err := checkpoint.NewFileStore(opts.CheckpointFile).Save(context.Background(), stale); err != nil {
		t.Fatal(err)
	}

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	got := readLines(t, opts.AccessibleOut)
	if len(got) != 1 || got[0] != live {
		t.Errorf("accessible export = %v, want [%s]", got, live)
	}
}

func TestInterruptedSavesCheckpoint(t *testing.T) {
	opts := testOpts(t, []string{fullServer(t), closedAddr(t)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Run(ctx, opts); err != nil {
		t.Fatal(err)
	}
	if doc := readReport(t, opts); doc.Stats.State != "interrupted" {
		t.Errorf("state = %q, want interrupted", doc.Stats.State)
	}
	cp, err := checkpoint.NewFileStore(opts.CheckpointFile).Load(context.Background())
	if err != nil || cp == nil {
		t.Fatalf("checkpoint not saved: %v", err)
	}
	if cp.Total != 2 {
		t.Errorf("checkpoint total = %d, want 2", cp.Total)
	}
}

func TestNoCheckpointWritesNothing(t *testing.T) {
	opts := testOpts(t, []string{fullServer(t)}, "--no-checkpoint", "--ceiling", "100")

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(opts.CheckpointFile); !os.IsNotExist(err) {
		t.Errorf("checkpoint file written with --no-checkpoint, stat err = %v", err)
	}
}

func TestReportFiltersKeepExport(t *testing.T) {
	live := fullServer(t)
	dead := closedAddr(t)
	opts := testOpts(t, []string{live, dead}, "--exclude-category", "full")

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	doc := readReport(t, opts)
	if len(doc.Categories["full"]) != 0 {
		t.Errorf("full should be filtered from the report, got %+v", doc.Categories["full"])
	}
	if len(doc.Categories["dead"]) != 1 {
		t.Errorf("dead = %+v, want one host", doc.Categories["dead"])
	}
	if doc.Stats.Accessible != 1 {
		t.Errorf("stats.accessible = %d, want 1", doc.Stats.Accessible)
	}
	if got := readLines(t, opts.AccessibleOut); len(got) != 1 {
		t.Errorf("accessible export = %v, want the filtered host", got)
	}
}

func TestHookRunsForAccessibleHosts(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	live := fullServer(t)
	marker := filepath.Join(t.TempDir(), "hook.txt")
	opts := testOpts(t, []string{live, closedAddr(t)}, "--on-accessible", "echo {host} {category} >> "+marker)

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	got := readLines(t, marker)
	if len(got) != 2 || got[0] != live || got[1] != "full" {
		t.Errorf("hook output = %v", got)
	}
}

func TestRunWithoutHosts(t *testing.T) {
	opts := testOpts(t, nil)
	if err := Run(context.Background(), opts); err == nil {
		t.Fatal("expected an error for an empty host list")
	}
}
