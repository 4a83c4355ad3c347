package client

import (
	"time"

	"github.com/yourneighborhoodchef/veilfetch/internal/fingerprint"
	"github.com/yourneighborhoodchef/veilfetch/internal/proxy"
	"github.com/yourneighborhoodchef/veilfetch/internal/scheduler"
)

// Config is the full tunable surface of a Client. Start from
// DefaultConfig and override; New takes the struct as-is apart from
// normalizing nonsensical numeric values.
type Config struct {
	// Proxy pool
	Proxies          []string
	UseProxies       bool
	ProxyRotation    proxy.Policy
	MaxProxyFailures int

	// Admission rate budget
	RequestsPerMinute int
	RequestsPerSecond int
	MinDelayMs        int
	MaxDelayMs        int

	// Retry policy
	MaxRetries             int
	RetryDelayMs           int
	RetryBackoffMultiplier float64
	MaxRetryDelayMs        int
	RetryableStatuses      []int

	// Fingerprinting
	RotateFingerprint   bool
	FingerprintRotation fingerprint.Policy
	RandomizeHeaders    bool
	AddJitter           bool
	JitterPercent       float64

	// Timeouts
	TimeoutMs        int
	ConnectTimeoutMs int

	// Cookie persistence (scoped name->value map, not a full jar)
	PersistCookies bool
	SessionID      string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		ProxyRotation:          proxy.RoundRobin,
		MaxProxyFailures:       3,
		RequestsPerMinute:      30,
		RequestsPerSecond:      2,
		MinDelayMs:             500,
		MaxDelayMs:             3000,
		MaxRetries:             3,
		RetryDelayMs:           1000,
		RetryBackoffMultiplier: 2,
		MaxRetryDelayMs:        10000,
		RetryableStatuses:      []int{408, 429, 500, 502, 503, 504},
		RotateFingerprint:      true,
		FingerprintRotation:    fingerprint.Random,
		AddJitter:              true,
		JitterPercent:          0.30,
		TimeoutMs:              30000,
		ConnectTimeoutMs:       10000,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxProxyFailures <= 0 {
		c.MaxProxyFailures = 3
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelayMs <= 0 {
		c.RetryDelayMs = 1000
	}
	if c.RetryBackoffMultiplier < 1 {
		c.RetryBackoffMultiplier = 2
	}
	if c.MaxRetryDelayMs <= 0 {
		c.MaxRetryDelayMs = 10000
	}
	if c.RetryableStatuses == nil {
		c.RetryableStatuses = []int{408, 429, 500, 502, 503, 504}
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 30000
	}
	return c
}

// schedulerConfig maps the client-facing rate fields onto the
// scheduler's config.
func (c Config) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		RequestsPerSecond: c.RequestsPerSecond,
		RequestsPerMinute: c.RequestsPerMinute,
		MinDelay:          time.Duration(c.MinDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(c.MaxDelayMs) * time.Millisecond,
		Jitter:            c.AddJitter,
		JitterPercent:     c.JitterPercent,
	}
}
