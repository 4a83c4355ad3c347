package client

import "time"

// Outcome is the settled result of one logical fetch, covering all of
// its attempts. Non-2xx terminal statuses are reported here with
// Success=false rather than as errors.
type Outcome struct {
	Success         bool
	StatusCode      int
	Headers         map[string]string
	Body            []byte
	Attempts        int
	Elapsed         time.Duration
	ProxyUsed       string
	FingerprintUsed string
}

// decision is the classification of a received response: retry it or
// hand it back to the caller as-is.
type decision int

const (
	decideTerminal decision = iota
	decideRetry
)

// classify maps a received status code onto a retry decision. Keeping
// this a pure function keeps the retry loop's control flow explicit.
func classify(status int, retryable []int) decision {
	for _, s := range retryable {
		if status == s {
			return decideRetry
		}
	}
	return decideTerminal
}
