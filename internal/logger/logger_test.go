package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantWarn  bool
	}{
		{"debug", true, true},
		{"INFO", false, true},
		{"warn", false, true},
		{"error", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		l := New(tt.level, "text", &buf)
		l.Debug("dbg")
		l.Warn("wrn")

		out := buf.String()
		if got := strings.Contains(out, "msg=dbg"); got != tt.wantDebug {
			t.Errorf("level %q: debug logged = %v, want %v", tt.level, got, tt.wantDebug)
		}
		if got := strings.Contains(out, "msg=wrn"); got != tt.wantWarn {
			t.Errorf("level %q: warn logged = %v, want %v", tt.level, got, tt.wantWarn)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New("info", "json", &buf).Info("checkpoint saved", "cursor", 7)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "checkpoint saved" || rec["cursor"] != float64(7) {
		t.Fatalf("unexpected record: %v", rec)
	}
	if _, ok := rec["source"]; !ok {
		t.Fatal("json records carry the source location")
	}
}
