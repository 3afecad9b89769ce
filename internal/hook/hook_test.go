package hook

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/maxvaer/zrprobe/internal/classify"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("hook tests use sh")
	}
}

func TestRunPlaceholders(t *testing.T) {
	skipOnWindows(t)
	var out bytes.Buffer
	r := NewRunner("echo {host} {category} {status} {size}", &out, nil)
	r.Run(context.Background(), &classify.Record{Host: "a.example", Category: classify.Full, StatusCode: 200, BodySize: 6000})

	if got := strings.TrimSpace(out.String()); got != "a.example full 200 6000" {
		t.Errorf("output = %q", got)
	}
}

func TestRunPayloadOnStdin(t *testing.T) {
	skipOnWindows(t)
	var out bytes.Buffer
	r := NewRunner("cat", &out, nil)
	r.Run(context.Background(), &classify.Record{Host: "b.example", Category: classify.PortOnly})

	got := out.String()
	for _, want := range []string{`"host":"b.example"`, `"category":"port_only"`, `"status_code":0`} {
		if !strings.Contains(got, want) {
			t.Errorf("payload %s missing %s", got, want)
		}
	}
}

func TestRunSkipsDeadHosts(t *testing.T) {
	skipOnWindows(t)
	var out bytes.Buffer
	r := NewRunner("echo ran", &out, nil)
	r.Run(context.Background(), &classify.Record{Host: "c.example", Category: classify.Dead})

	if out.Len() != 0 {
		t.Errorf("hook ran for a dead host: %q", out.String())
	}
}

func TestRunFailureDoesNotPanic(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner("exit 3", nil, nil)
	r.Run(context.Background(), &classify.Record{Host: "a.example", Category: classify.Small})

	var nilRunner *Runner
	nilRunner.Run(context.Background(), &classify.Record{Host: "a.example", Category: classify.Small})
}

func TestRunKeepsRecordValuesOutOfTheCommand(t *testing.T) {
	skipOnWindows(t)
	marker := filepath.Join(t.TempDir(), "marker")
	host := "a.example;touch " + marker + ";$(touch " + marker + ")`touch " + marker + "`"

	var out bytes.Buffer
	r := NewRunner("echo {host}", &out, nil)
	r.Run(context.Background(), &classify.Record{Host: host, Category: classify.Full})

	if got := strings.TrimSpace(out.String()); got != host {
		t.Errorf("output = %q, want the host verbatim", got)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Errorf("host text was executed by the shell, stat err = %v", err)
	}
}

func TestExpand(t *testing.T) {
	r := NewRunner("notify {host} {category} {status} {size}", nil, nil)
	tests := []struct {
		goos string
		want string
	}{
		{"linux", `notify "$ZRPROBE_HOST" "$ZRPROBE_CATEGORY" "$ZRPROBE_STATUS" "$ZRPROBE_SIZE"`},
		{"windows", `notify %ZRPROBE_HOST% %ZRPROBE_CATEGORY% %ZRPROBE_STATUS% %ZRPROBE_SIZE%`},
	}
	for _, tt := range tests {
		if got := r.expand(tt.goos); got != tt.want {
			t.Errorf("expand(%s) = %q, want %q", tt.goos, got, tt.want)
		}
	}
}

func TestQueueRunsHooksInBackground(t *testing.T) {
	skipOnWindows(t)
	var out bytes.Buffer
	q := NewRunner("sleep 0.3; echo {host}", &out, nil).Start(context.Background(), 1)

	start := time.Now()
	q.Submit(&classify.Record{Host: "a.example", Category: classify.Full})
	q.Submit(&classify.Record{Host: "dead.example", Category: classify.Dead})
	q.Submit(&classify.Record{Host: "b.example", Category: classify.Small})
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Submit blocked for %v", elapsed)
	}

	q.Close()
	if got := strings.Fields(out.String()); strings.Join(got, ",") != "a.example,b.example" {
		t.Errorf("hook output = %v", got)
	}
}

func TestNilQueue(t *testing.T) {
	var r *Runner
	q := r.Start(context.Background(), 2)
	if q != nil {
		t.Fatal("nil runner should give a nil queue")
	}
	q.Submit(&classify.Record{Host: "a.example", Category: classify.Full})
	q.Close()
}
