// Package hostlist loads and normalizes the hosts to probe.
package hostlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

// ErrEmpty is returned when no usable host was found in the input.
var ErrEmpty = errors.New("host list is empty")

// Normalize reduces a user-supplied entry to the host or host:port that
// identifies it. Scheme prefixes, credentials, paths, queries, fragments
// and trailing dots are removed, the name is lowercased, and default ports
// (80, 443) are dropped. It reports false when nothing usable remains or
// the name holds characters no hostname or IP address can contain.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.ToLower(s)
	if s == "" || strings.ContainsAny(s, " \t") {
		return "", false
	}

	host, port := s, ""
	if h, p, err := net.SplitHostPort(s); err == nil {
		host, port = h, p
	} else if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		host = s[1 : len(s)-1]
	}
	host = strings.TrimSuffix(host, ".")
	if !validHost(host) {
		return "", false
	}

	switch port {
	case "", "80", "443":
		return host, true
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", false
	}
	return net.JoinHostPort(host, port), true
}

// validHost accepts DNS names (letters, digits, '-', '_' and '.') and IP
// literals. Colons are only allowed in an IPv6 address.
func validHost(host string) bool {
	if host == "" {
		return false
	}
	for _, c := range host {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == ':':
		default:
			return false
		}
	}
	if strings.Contains(host, ":") {
		return net.ParseIP(host) != nil
	}
	return true
}

// Parse reads one entry per line. Blank lines and lines starting with '#'
// are skipped. Entries are normalized and de-duplicated, keeping the first
// occurrence.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host, ok := Normalize(line)
		if !ok {
			continue
		}
		if _, dup := seen[host]; !dup {
			seen[host] = struct{}{}
			out = append(out, host)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading host list: %w", err)
	}
	return out, nil
}

// Load reads a host list file. A path of "-" reads standard input.
func Load(path string) ([]string, error) {
	if path == "-" {
		return Parse(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening host list %s: %w", path, err)
	}
	defer f.Close()
	hosts, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return hosts, nil
}

// Merge concatenates host lists, normalizing and de-duplicating across all
// of them while keeping first-seen order. It returns ErrEmpty when the
// result has no hosts.
func Merge(lists ...[]string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, raw := range list {
			host, ok := Normalize(raw)
			if !ok {
				continue
			}
			if _, dup := seen[host]; !dup {
				seen[host] = struct{}{}
				out = append(out, host)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}
