package runner

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/maxvaer/zrprobe/internal/budget"
	"github.com/maxvaer/zrprobe/internal/classify"
	"github.com/maxvaer/zrprobe/internal/config"
	"github.com/maxvaer/zrprobe/internal/coordinator"
	"github.com/maxvaer/zrprobe/internal/logger"
)

func TestResolveHosts(t *testing.T) {
	list := filepath.Join(t.TempDir(), "hosts.txt")
	content := "# zero-rated candidates\nfree.example.com\nhttp://Wiki.Example.org/path\n\nfree.example.com:443\n"
	if err := os.WriteFile(list, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		opts  config.Options
		stdin string
		want  []string
	}{
		{
			name: "arguments",
			opts: config.Options{Hosts: []string{"a.example", "https://b.example/", "a.example"}},
			want: []string{"a.example", "b.example"},
		},
		{
			name: "file",
			opts: config.Options{HostFiles: []string{list}},
			want: []string{"free.example.com", "wiki.example.org"},
		},
		{
			name:  "stdin",
			opts:  config.Options{Hosts: []string{"-"}},
			stdin: "s1.example\ns2.example:8080\n",
			want:  []string{"s1.example", "s2.example:8080"},
		},
		{
			name: "cidr",
			opts: config.Options{CIDRTargets: "10.0.0.0/30", Ports: "80,8080"},
			want: []string{"10.0.0.1", "10.0.0.1:8080", "10.0.0.2", "10.0.0.2:8080"},
		},
		{
			name: "merged in order",
			opts: config.Options{Hosts: []string{"wiki.example.org", "z.example"}, HostFiles: []string{list}},
			want: []string{"wiki.example.org", "z.example", "free.example.com"},
		},
		{
			name: "invalid arguments dropped",
			opts: config.Options{Hosts: []string{"ok.example", "bad host", "x.example:99999"}},
			want: []string{"ok.example"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveHosts(&tt.opts, strings.NewReader(tt.stdin), logger.Discard())
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveHostsEmpty(t *testing.T) {
	_, err := resolveHosts(&config.Options{Hosts: []string{"# nothing"}}, strings.NewReader(""), logger.Discard())
	if !errors.Is(err, coordinator.ErrNoHosts) {
		t.Errorf("err = %v, want ErrNoHosts", err)
	}
}

func TestResolveHostsMissingFile(t *testing.T) {
	opts := &config.Options{HostFiles: []string{filepath.Join(t.TempDir(), "missing.txt")}}
	if _, err := resolveHosts(opts, strings.NewReader(""), logger.Discard()); err == nil {
		t.Error("expected an error for a missing host list")
	}
}

func TestBuildFilters(t *testing.T) {
	if n := buildFilters(&config.Options{}).Len(); n != 0 {
		t.Errorf("no filter options should build no rules, got %d", n)
	}

	filters := buildFilters(&config.Options{ExcludeStatus: []int{404}, IncludeCategories: []string{"full", "error_page"}})
	if filters.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", filters.Len())
	}
	tests := []struct {
		rec  classify.Record
		want bool
	}{
		{classify.Record{Category: classify.Full, StatusCode: 200}, false},
		{classify.Record{Category: classify.ErrorPage, StatusCode: 404}, true},
		{classify.Record{Category: classify.ErrorPage, StatusCode: 500}, false},
		{classify.Record{Category: classify.Dead}, true},
	}
	for _, tt := range tests {
		if got, _ := filters.Apply(&tt.rec); got != tt.want {
			t.Errorf("Apply(%s/%d) = %v, want %v", tt.rec.Category, tt.rec.StatusCode, got, tt.want)
		}
	}
}

func TestProbeConfigCarriesOptions(t *testing.T) {
	opts := &config.Options{
		MaxBytes:        512,
		Method:          "head",
		Schemes:         []string{"https"},
		FollowRedirects: 0,
		TCPCheck:        true,
		Headers:         map[string]string{"X-Test": "1"},
		Proxy:           "socks5://127.0.0.1:1080",
	}
	cfg := probeConfig(opts)
	if cfg.MaxBytes != 512 || cfg.Method != "head" || !cfg.TCPCheck || cfg.Proxy != opts.Proxy {
		t.Errorf("probe config %+v does not match options", cfg)
	}
	if !reflect.DeepEqual(cfg.Schemes, []string{"https"}) || cfg.Headers["X-Test"] != "1" {
		t.Errorf("schemes/headers not carried: %+v", cfg)
	}
}

func TestPrintOutcome(t *testing.T) {
	opts := &config.Options{CheckpointFile: ".zrprobe_state.json"}
	tests := []struct {
		state coordinator.State
		want  string
	}{
		{coordinator.BudgetExceeded, "Data ceiling of 1000 bytes reached after 2/5 hosts"},
		{coordinator.Interrupted, "Interrupted after 2/5 hosts"},
		{coordinator.Completed, "Scan complete: 1/5 hosts accessible"},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			var buf bytes.Buffer
			printOutcome(&buf, opts, &coordinator.Result{
				State:      tt.state,
				Cursor:     2,
				Total:      5,
				Accessible: []string{"a.example"},
				Budget:     budget.Stats{Ceiling: 1000},
			})
			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
			hinted := strings.Contains(out, "run the same command again to resume")
			if hinted != (tt.state != coordinator.Completed) {
				t.Errorf("resume hint shown = %v for %s", hinted, tt.state)
			}
		})
	}
}
