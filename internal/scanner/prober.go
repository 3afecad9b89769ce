package scanner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/proxy"

	"github.com/maxvaer/zrprobe/internal/budget"
)

// DefaultUserAgent is a mobile browser string. Zero-rating rules are often
// keyed on mobile traffic, so a desktop or tool UA can change the answer.
const DefaultUserAgent = "Mozilla/5.0 (Linux; U; Android 8.1.0; en-US; Nexus 6P Build/OPM7.181205.001) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/57.0.2987.108 UCBrowser/12.11.1.1197 Mobile Safari/537.36"

// Probe methods.
const (
	MethodHead = "head"
	MethodGet  = "get"
)

// overheadBytes approximates per-request framing that never shows up in
// headers or body (TCP/IP, TLS records).
const overheadBytes = 200

// chunkSize is the read size for sampled bodies.
const chunkSize = 512

// defaultHeaders mirrors what a mobile browser sends on a plain navigation.
var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml",
	"Accept-Language": "en-US,en;q=0.9",
	"Accept-Encoding": "gzip, deflate",
	"Cache-Control":   "no-cache",
	"Connection":      "close",
}

// ProbeConfig holds the settings of an HTTPProber.
type ProbeConfig struct {
	Timeout         time.Duration // per HTTP request, body sampling included
	ConnectTimeout  time.Duration // TCP pre-check dial
	MaxBytes        int64         // body sample cap for GET
	UserAgent       string
	Headers         map[string]string // extra headers, override the defaults
	Schemes         []string          // tried in order, default http then https
	Method          string            // MethodHead or MethodGet
	FollowRedirects int               // 0 or 1
	TCPCheck        bool
	Proxy           string // http://, https://, socks5:// or socks5h:// URL
}

// HTTPProber probes hosts with a data-frugal HTTP request and charges every
// byte it moves to a shared budget tracker.
type HTTPProber struct {
	cfg     ProbeConfig
	client  *http.Client
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	headers http.Header
	budget  *budget.Tracker

	// viaHTTPProxy means every connection goes to the proxy, so a
	// successful dial says nothing about the target's ports.
	viaHTTPProxy bool
}

// NewHTTPProber builds a prober. The tracker may be nil, in which case bytes
// are counted per probe but never capped.
func NewHTTPProber(cfg ProbeConfig, tracker *budget.Tracker) (*HTTPProber, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 || cfg.ConnectTimeout > cfg.Timeout {
		cfg.ConnectTimeout = min(2*time.Second, cfg.Timeout)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5120
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if len(cfg.Schemes) == 0 {
		cfg.Schemes = []string{"http", "https"}
	}
	for _, s := range cfg.Schemes {
		if s != "http" && s != "https" {
			return nil, fmt.Errorf("unsupported scheme %q", s)
		}
	}
	if cfg.Method == "" {
		cfg.Method = MethodHead
	}
	if cfg.Method != MethodHead && cfg.Method != MethodGet {
		return nil, fmt.Errorf("unsupported probe method %q", cfg.Method)
	}
	if tracker == nil {
		tracker = budget.New(0)
	}

	base := &net.Dialer{Timeout: cfg.ConnectTimeout}
	dial := base.DialContext

	transport := &http.Transport{
		TLSClientConfig:        &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // the handshake itself is the signal
		TLSHandshakeTimeout:    cfg.Timeout,
		ResponseHeaderTimeout:  cfg.Timeout,
		DisableKeepAlives:      true,
		DisableCompression:     true,
		MaxResponseHeaderBytes: 64 << 10,
	}

	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		switch u.Scheme {
		case "socks5", "socks5h":
			d, err := proxy.FromURL(u, base)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS dialer: %w", err)
			}
			cd, ok := d.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("SOCKS dialer for %s does not support contexts", u.Host)
			}
			dial = cd.DialContext
		case "http", "https":
			// The TCP pre-check would only test the proxy, so it is skipped.
			transport.Proxy = http.ProxyURL(u)
			cfg.TCPCheck = false
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}

	p := &HTTPProber{
		cfg:          cfg,
		dial:         dial,
		headers:      buildHeaders(cfg),
		budget:       tracker,
		viaHTTPProxy: transport.Proxy != nil,
	}
	transport.DialContext = p.dialContext
	p.client = &http.Client{
		Transport:     &meteredTransport{base: transport, budget: tracker},
		Timeout:       cfg.Timeout,
		CheckRedirect: redirectPolicy(cfg.FollowRedirects),
	}
	return p, nil
}

// SetDialer replaces the dialer used for TCP checks and HTTP connections.
func (p *HTTPProber) SetDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) {
	p.dial = dial
}

func buildHeaders(cfg ProbeConfig) http.Header {
	h := make(http.Header, len(defaultHeaders)+len(cfg.Headers)+1)
	for k, v := range defaultHeaders {
		h.Set(k, v)
	}
	h.Set("User-Agent", cfg.UserAgent)
	for k, v := range cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return http.ErrUseLastResponse
		}
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return http.ErrUseLastResponse
		}
		return nil
	}
}

// target is one scheme/address pair to try for a host.
type target struct {
	scheme string
	addr   string // host:port to dial
	port   int
	url    string
}

func (p *HTTPProber) targets(host string) []target {
	explicit := 0
	hostname := host
	if h, portStr, err := net.SplitHostPort(host); err == nil {
		if n, err := strconv.Atoi(portStr); err == nil {
			hostname, explicit = h, n
		}
	}

	urlHost := host
	if explicit == 0 && strings.Contains(hostname, ":") {
		urlHost = "[" + hostname + "]"
	}

	out := make([]target, 0, len(p.cfg.Schemes))
	for _, scheme := range p.cfg.Schemes {
		port := explicit
		if port == 0 {
			port = 80
			if scheme == "https" {
				port = 443
			}
		}
		out = append(out, target{
			scheme: scheme,
			addr:   net.JoinHostPort(hostname, strconv.Itoa(port)),
			port:   port,
			url:    scheme + "://" + urlHost + "/",
		})
	}
	return out
}

// Probe checks one host. It never returns an error: every failure is
// reported through the result's Outcome and Reason. Cancelling ctx does not
// abort a probe that has started; each network step has its own timeout.
func (p *HTTPProber) Probe(ctx context.Context, host string) ProbeResult {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	m := &meter{budget: p.budget}
	ctx = withMeter(ctx, m)

	res := ProbeResult{Host: host, ContentLength: -1}
	finish := func() ProbeResult {
		if m.connected.Load() && !p.viaHTTPProxy && !res.PortOpen {
			res.PortOpen = true
			res.OpenPort = int(m.port.Load())
		}
		res.BytesUsed = m.used.Load()
		res.BudgetExceeded = res.BudgetExceeded || m.exceeded.Load()
		res.Latency = time.Since(start)
		return res
	}

	targets := p.targets(host)

	if p.cfg.TCPCheck {
		open, err := p.checkPorts(ctx, targets)
		if len(open) == 0 {
			res.Outcome, res.Reason = classifyError(err)
			return finish()
		}
		res.PortOpen = true
		res.OpenPort = open[0].port
		targets = open
	}

	var lastErr error
	for _, t := range targets {
		if p.budget.Exceeded() {
			res.BudgetExceeded = true
			lastErr = errBudget
			break
		}
		err := p.request(ctx, t, &res)
		if err == nil {
			res.Outcome = OutcomeSuccess
			return finish()
		}
		lastErr = err
	}

	res.Outcome, res.Reason = classifyError(lastErr)
	return finish()
}

// checkPorts dials every distinct address once and returns the targets
// whose port accepted a connection, in scheme order.
func (p *HTTPProber) checkPorts(ctx context.Context, targets []target) ([]target, error) {
	status := make(map[string]bool, len(targets))
	var open []target
	var lastErr error
	for _, t := range targets {
		ok, seen := status[t.addr]
		if !seen {
			dctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
			conn, err := p.dial(dctx, "tcp", t.addr)
			cancel()
			if err != nil {
				lastErr = err
			} else {
				conn.Close()
				ok = true
			}
			status[t.addr] = ok
		}
		if ok {
			open = append(open, t)
		}
	}
	return open, lastErr
}

// request runs the HTTP exchange for one target and fills res on success.
func (p *HTTPProber) request(ctx context.Context, t target, res *ProbeResult) error {
	method := http.MethodGet
	if p.cfg.Method == MethodHead {
		method = http.MethodHead
	}

	resp, err := p.do(ctx, method, t.url)
	if err != nil {
		return err
	}
	if method == http.MethodHead &&
		(resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		resp.Body.Close()
		method = http.MethodGet
		if resp, err = p.do(ctx, method, t.url); err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	res.Scheme = t.scheme
	res.Method = method
	res.StatusCode = resp.StatusCode
	res.ContentLength = resp.ContentLength

	if method == http.MethodGet {
		n, exceeded, err := p.sample(ctx, resp.Body)
		res.BodyBytes = n
		if exceeded {
			res.BudgetExceeded = true
			res.Reason = "budget"
		} else if err != nil {
			res.Reason = "partial"
		}
	}
	return nil
}

func (p *HTTPProber) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = p.headers.Clone()
	req.Close = true
	return p.client.Do(req)
}

// sample reads at most MaxBytes of body in small chunks, charging each
// chunk to the budget, and stops as soon as the budget is exhausted. The
// caller closes the body, which aborts the rest of the transfer.
func (p *HTTPProber) sample(ctx context.Context, body io.Reader) (int64, bool, error) {
	m := meterFrom(ctx)
	buf := make([]byte, chunkSize)
	lr := io.LimitReader(body, p.cfg.MaxBytes)
	var n int64
	for {
		k, err := lr.Read(buf)
		if k > 0 {
			n += int64(k)
			if !m.charge(int64(k)) {
				return n, true, nil
			}
		}
		if errors.Is(err, io.EOF) {
			return n, false, nil
		}
		if err != nil {
			return n, false, err
		}
	}
}

// dialContext wraps the configured dialer and notes successful connections
// so that a probe can tell "port open, no HTTP answer" from "unreachable".
func (p *HTTPProber) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := p.dial(ctx, network, addr)
	if err == nil {
		if m := meterFrom(ctx); m != nil {
			m.connectedTo(addr)
		}
	}
	return conn, err
}

var errBudget = errors.New("budget exceeded")

// classifyError maps a network error to an outcome and a short reason.
func classifyError(err error) (Outcome, string) {
	if err == nil {
		return OutcomeConnError, "unreachable"
	}
	if errors.Is(err, errBudget) {
		return OutcomeOtherError, "budget"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return OutcomeTimeout, "dns"
		}
		return OutcomeConnError, "dns"
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout, "timeout"
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return OutcomeConnError, "refused"
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return OutcomeConnError, "reset"
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return OutcomeConnError, "unreachable"
	}

	var recErr tls.RecordHeaderError
	var alertErr tls.AlertError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &recErr) || errors.As(err, &alertErr) || errors.As(err, &certErr) ||
		strings.Contains(err.Error(), "tls:") {
		return OutcomeOtherError, "tls"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return OutcomeConnError, opErr.Op
	}
	return OutcomeOtherError, "other"
}
