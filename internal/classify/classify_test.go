package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maxvaer/zrprobe/internal/scanner"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name string
		res  scanner.ProbeResult
		want Category
	}{
		{"full at threshold", scanner.ProbeResult{StatusCode: 200, ContentLength: 5120}, Full},
		{"full from advertised length", scanner.ProbeResult{StatusCode: 200, ContentLength: 6000, BodyBytes: 0}, Full},
		{"medium lower bound", scanner.ProbeResult{StatusCode: 200, ContentLength: 1024}, Medium},
		{"medium from sample", scanner.ProbeResult{StatusCode: 200, ContentLength: -1, BodyBytes: 5119}, Medium},
		{"small", scanner.ProbeResult{StatusCode: 204, ContentLength: -1, BodyBytes: 1}, Small},
		{"empty", scanner.ProbeResult{StatusCode: 200, ContentLength: 0}, Empty},
		{"empty unknown length on HEAD", scanner.ProbeResult{StatusCode: 301, ContentLength: -1}, Empty},
		{"error page wins over size", scanner.ProbeResult{StatusCode: 404, ContentLength: 100000}, ErrorPage},
		{"server error", scanner.ProbeResult{StatusCode: 503, ContentLength: 0}, ErrorPage},
		{"port only", scanner.ProbeResult{PortOpen: true, Outcome: scanner.OutcomeTimeout, ContentLength: -1}, PortOnly},
		{"dead", scanner.ProbeResult{Outcome: scanner.OutcomeConnError, ContentLength: -1}, Dead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.res, th))
			// Same input, same output.
			assert.Equal(t, Classify(tt.res, th), Classify(tt.res, th))
		})
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	th := Thresholds{Small: 10, Full: 100}
	assert.Equal(t, Small, Classify(scanner.ProbeResult{StatusCode: 200, ContentLength: 9}, th))
	assert.Equal(t, Medium, Classify(scanner.ProbeResult{StatusCode: 200, ContentLength: 10}, th))
	assert.Equal(t, Full, Classify(scanner.ProbeResult{StatusCode: 200, ContentLength: 100}, th))
}

func TestCategoryAccessible(t *testing.T) {
	for _, c := range All {
		assert.Equal(t, c != Dead, c.Accessible(), string(c))
		assert.True(t, c.Valid())
	}
	assert.False(t, Category("bogus").Valid())
}

func TestNewRecord(t *testing.T) {
	res := scanner.ProbeResult{
		Host:          "a.example",
		Scheme:        "https",
		Method:        "GET",
		StatusCode:    200,
		BodyBytes:     700,
		ContentLength: -1,
		BytesUsed:     1234,
		Outcome:       scanner.OutcomeSuccess,
		Attempt:       2,
	}
	rec := NewRecord(res, DefaultThresholds())
	assert.Equal(t, Record{
		Host:       "a.example",
		Category:   Small,
		StatusCode: 200,
		BodySize:   700,
		Scheme:     "https",
		Method:     "GET",
		Outcome:    scanner.OutcomeSuccess,
		Attempt:    2,
		BytesUsed:  1234,
	}, rec)
	assert.False(t, rec.Retryable())

	dead := NewRecord(scanner.ProbeResult{Host: "b", ContentLength: -1, Outcome: scanner.OutcomeTimeout}, DefaultThresholds())
	assert.Equal(t, Dead, dead.Category)
	assert.Zero(t, dead.BodySize)
	assert.True(t, dead.Retryable())

	other := NewRecord(scanner.ProbeResult{Host: "c", ContentLength: -1, Outcome: scanner.OutcomeOtherError}, DefaultThresholds())
	assert.False(t, other.Retryable())
}
