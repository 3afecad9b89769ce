package hostlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"example.com", "example.com", true},
		{"  Example.COM  ", "example.com", true},
		{"http://example.com", "example.com", true},
		{"https://example.com/path?q=1#frag", "example.com", true},
		{"ftp://files.example.com/", "files.example.com", true},
		{"example.com.", "example.com", true},
		{"user:pass@example.com", "example.com", true},
		{"https://user@example.com:443/", "example.com", true},
		{"example.com:80", "example.com", true},
		{"example.com:8080", "example.com:8080", true},
		{"http://10.0.0.1:8443/x", "10.0.0.1:8443", true},
		{"[2001:db8::1]:8080", "[2001:db8::1]:8080", true},
		{"[2001:db8::1]", "2001:db8::1", true},
		{"example.com:99999", "", false},
		{"example.com:abc", "", false},
		{"", "", false},
		{"http://", "", false},
		{"two words", "", false},
		{"a.example;touch${IFS}/tmp/x", "", false},
		{"$(id)", "", false},
		{"`id`.example", "", false},
		{"a.example|sh", "", false},
		{"a.example&&id", "", false},
		{"quote'.example", "", false},
		{"my_host.example", "my_host.example", true},
		{"a:b:c", "", false},
		{"[::ffff:10.0.0.1]:8080", "[::ffff:10.0.0.1]:8080", true},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Normalize(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseSkipsCommentsAndDuplicates(t *testing.T) {
	input := strings.Join([]string{
		"# zero-rated candidates",
		"",
		"free.example.com",
		"https://free.example.com/",
		"FREE.example.com",
		"  other.example.org  ",
		"# trailing comment",
		"bad host",
		"portal.example.net:8080",
	}, "\n")

	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"free.example.com", "other.example.org", "portal.example.net:8080"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.txt")
	if err := os.WriteFile(path, []byte("a.example\r\nb.example\r\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0] != "a.example" || got[1] != "b.example" {
		t.Fatalf("unexpected hosts: %v", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestMerge(t *testing.T) {
	got, err := Merge([]string{"a.example", "http://b.example"}, []string{"B.example", "c.example:8080"})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := "a.example,b.example,c.example:8080"
	if strings.Join(got, ",") != want {
		t.Fatalf("got %v, want %s", got, want)
	}

	if _, err := Merge(nil, []string{"", "# nope"}); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}
