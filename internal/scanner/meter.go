package scanner

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"sync/atomic"

	"github.com/maxvaer/zrprobe/internal/budget"
)

// meter accounts the bytes of a single probe and forwards them to the
// shared tracker. The transport may dial on its own goroutine, so every
// field is atomic.
type meter struct {
	budget    *budget.Tracker
	used      atomic.Int64
	exceeded  atomic.Bool
	connected atomic.Bool
	port      atomic.Int32
}

type meterKey struct{}

func withMeter(ctx context.Context, m *meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

func meterFrom(ctx context.Context) *meter {
	m, _ := ctx.Value(meterKey{}).(*meter)
	return m
}

// charge adds n bytes and reports whether the budget still allows traffic.
func (m *meter) charge(n int64) bool {
	m.used.Add(n)
	if !m.budget.Add(n) {
		m.exceeded.Store(true)
		return false
	}
	return true
}

func (m *meter) connectedTo(addr string) {
	if m.connected.Swap(true) {
		return
	}
	if _, portStr, err := net.SplitHostPort(addr); err == nil {
		if n, err := strconv.Atoi(portStr); err == nil {
			m.port.Store(int32(n))
		}
	}
}

// meteredTransport charges the request line, request headers, response
// status line and response headers of every round trip, redirects included.
// A request is only charged once its headers were written to a connection,
// so failed dials cost nothing. Body bytes are charged by the reader that
// samples them.
type meteredTransport struct {
	base   http.RoundTripper
	budget *budget.Tracker
}

func (t *meteredTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m := meterFrom(req.Context())
	if m == nil {
		m = &meter{budget: t.budget}
	}
	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteHeaders: func() { wrote.Store(true) },
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := t.base.RoundTrip(req)
	if wrote.Load() || resp != nil {
		t.budget.RecordRequest()
		m.charge(requestBytes(req))
	}
	if err != nil {
		return nil, err
	}
	m.charge(responseHeaderBytes(resp) + overheadBytes)
	return resp, nil
}

func headerBytes(h http.Header) int64 {
	var n int64
	for k, vs := range h {
		for _, v := range vs {
			n += int64(len(k) + len(": ") + len(v) + len("\r\n"))
		}
	}
	return n
}

// requestBytes estimates the wire size of a request without a body.
func requestBytes(req *http.Request) int64 {
	n := int64(len(req.Method) + 1 + len(req.URL.RequestURI()) + len(" HTTP/1.1\r\n"))
	n += int64(len("Host: ") + len(req.URL.Host) + len("\r\n"))
	return n + headerBytes(req.Header) + int64(len("\r\n"))
}

// responseHeaderBytes estimates the wire size of a status line plus headers.
func responseHeaderBytes(resp *http.Response) int64 {
	n := int64(len(resp.Proto) + 1 + len(resp.Status) + len("\r\n"))
	return n + headerBytes(resp.Header) + int64(len("\r\n"))
}
