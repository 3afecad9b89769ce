package scanner

import "time"

// Outcome is the terminal tag of a single probe.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeConnError  Outcome = "connection_error"
	OutcomeOtherError Outcome = "other_error"
)

// Retryable reports whether the outcome means no traffic reached the host,
// which makes it eligible for another pass.
func (o Outcome) Retryable() bool {
	return o == OutcomeTimeout || o == OutcomeConnError
}

// ProbeResult holds the outcome of probing one host. It is a value: later
// stages derive new data from it and never modify it.
type ProbeResult struct {
	Host           string
	Scheme         string // "http", "https" or empty when no request completed
	Method         string // HTTP method of the response that was kept
	PortOpen       bool   // a TCP connection to 80/443 (or the explicit port) succeeded
	OpenPort       int
	StatusCode     int   // 0 when no HTTP response was obtained
	BodyBytes      int64 // body bytes actually read, capped at the sample size
	ContentLength  int64 // advertised length, -1 when unknown
	BytesUsed      int64 // bytes charged to the budget by this probe
	Latency        time.Duration
	Outcome        Outcome
	Reason         string // refused, reset, dns, tls, unreachable, partial, budget
	Attempt        int
	BudgetExceeded bool
}

// Responded reports whether an HTTP response was obtained.
func (r ProbeResult) Responded() bool {
	return r.StatusCode > 0
}

// BodySize is the size used for classification: the advertised
// Content-Length when the server sent one, otherwise the sampled bytes.
func (r ProbeResult) BodySize() int64 {
	if r.ContentLength >= 0 {
		return r.ContentLength
	}
	return r.BodyBytes
}
