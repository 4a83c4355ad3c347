package client

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourneighborhoodchef/veilfetch/internal/fingerprint"
	"github.com/yourneighborhoodchef/veilfetch/internal/proxy"
	"github.com/yourneighborhoodchef/veilfetch/internal/scheduler"
)

// RequestOptions carries per-call overrides for Fetch.
type RequestOptions struct {
	Method  string
	Headers map[string]string
	Body    []byte
}

// Client is the request orchestrator: every Fetch draws a fingerprint
// and (optionally) a proxy, passes through the admission scheduler,
// and retries transient failures with exponential backoff. Construct
// one explicitly with New; there is no package-level instance.
type Client struct {
	mu        sync.RWMutex
	cfg       Config
	cookies   map[string]string
	sessionID string
	pinned    fingerprint.Profile

	fingerprints *fingerprint.Pool
	proxies      *proxy.Pool
	sched        *scheduler.Scheduler
	stats        counters
	logger       *zap.Logger

	// rng is touched only from inside scheduler tasks; the scheduler's
	// single-flight drain loop is what makes that safe.
	rng *rand.Rand
}

// New builds a Client from cfg. A nil logger is replaced with a nop
// logger. Malformed proxy strings in cfg.Proxies are dropped with a
// warning.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	fps := fingerprint.NewPool(cfg.FingerprintRotation)
	proxies := proxy.NewPool(cfg.ProxyRotation, cfg.MaxProxyFailures, logger)
	proxies.AddStrings(cfg.Proxies)

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	c := &Client{
		cfg:          cfg,
		cookies:      make(map[string]string),
		sessionID:    sessionID,
		pinned:       fps.Next(),
		fingerprints: fps,
		proxies:      proxies,
		sched:        scheduler.New(cfg.schedulerConfig(), logger),
		logger:       logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	return c
}

// Close shuts down the scheduler, rejecting anything still queued.
func (c *Client) Close() {
	c.sched.Stop()
}

// Get fetches target with GET.
func (c *Client) Get(target string) (*Outcome, error) {
	return c.Fetch(target, nil)
}

// Post fetches target with POST and the given body.
func (c *Client) Post(target string, body []byte, headers map[string]string) (*Outcome, error) {
	return c.Fetch(target, &RequestOptions{Method: http.MethodPost, Headers: headers, Body: body})
}

// Fetch runs one logical request. The fingerprint is drawn once and
// held fixed across retries; the whole retry loop is submitted to the
// scheduler as a single unit so the rate budget counts logical calls.
// Terminal non-2xx responses come back as an Outcome with
// Success=false, not as an error.
func (c *Client) Fetch(target string, opts *RequestOptions) (*Outcome, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	// Validate method/URL once up front so a bad target does not burn
	// the retry budget.
	if _, err := http.NewRequest(method, target, nil); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	prof := c.nextProfile()
	start := time.Now()

	var outcome *Outcome
	var attempts int
	err := c.sched.Do(func() error {
		var runErr error
		outcome, attempts, runErr = c.runAttempts(method, target, opts, prof)
		return runErr
	})
	elapsed := time.Since(start)

	if err != nil {
		c.stats.record(false, attempts, elapsed)
		return nil, err
	}
	outcome.Elapsed = elapsed
	c.stats.record(outcome.Success, attempts, elapsed)
	return outcome, nil
}

// runAttempts executes the retry loop for one logical request. It runs
// inside the scheduler's drain loop, so exactly one of these is ever
// active.
func (c *Client) runAttempts(method, target string, opts *RequestOptions, prof fingerprint.Profile) (*Outcome, int, error) {
	cfg := c.config()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		var ep *proxy.Endpoint
		if cfg.UseProxies {
			ep = c.proxies.Next()
		}

		resp, body, err := c.execute(cfg, method, target, opts, prof, ep)
		if err != nil {
			// Transport failure: timeout, connection, DNS.
			c.proxies.MarkFailure(ep)
			lastErr = err
			c.logger.Debug("attempt failed",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			if attempt < cfg.MaxRetries {
				time.Sleep(c.backoff(cfg, attempt))
				continue
			}
			return nil, attempt + 1, fmt.Errorf("%d attempts failed: %w", attempt+1, lastErr)
		}

		out := &Outcome{
			StatusCode:      resp.StatusCode,
			Headers:         flattenHeaders(resp.Header),
			Body:            body,
			Attempts:        attempt + 1,
			FingerprintUsed: prof.UserAgent,
		}
		if ep != nil {
			out.ProxyUsed = ep.Key()
		}

		if classify(resp.StatusCode, cfg.RetryableStatuses) == decideRetry && attempt < cfg.MaxRetries {
			c.proxies.MarkFailure(ep)
			c.logger.Debug("retryable status",
				zap.String("url", target),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			time.Sleep(c.backoff(cfg, attempt))
			continue
		}

		// Terminal, or a retryable status on the final attempt: either
		// way the outcome goes back to the caller.
		if resp.StatusCode < 400 {
			c.proxies.MarkSuccess(ep)
		}
		if cfg.PersistCookies {
			c.storeCookies(resp)
		}
		out.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
		return out, attempt + 1, nil
	}

	// Unreachable: the loop always returns from its final iteration.
	return nil, cfg.MaxRetries + 1, lastErr
}

// execute performs a single attempt through a TLS-fingerprinted client,
// via the proxy tunnel when one is given.
func (c *Client) execute(cfg Config, method, target string, opts *RequestOptions, prof fingerprint.Profile, ep *proxy.Endpoint) (*http.Response, []byte, error) {
	httpClient, err := c.buildHTTPClient(cfg, ep)
	if err != nil {
		return nil, nil, fmt.Errorf("build http client: %w", err)
	}

	var bodyReader io.Reader
	if len(opts.Body) > 0 {
		bodyReader = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequest(method, target, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	req.Header = c.buildHeaders(cfg, prof, opts.Headers)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func (c *Client) buildHTTPClient(cfg Config, ep *proxy.Endpoint) (tls_client.HttpClient, error) {
	timeoutSecs := (cfg.TimeoutMs + 999) / 1000
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(timeoutSecs),
		tls_client.WithClientProfile(profiles.Chrome_120),
	}
	if ep != nil {
		options = append(options, tls_client.WithProxyUrl(ep.URL()))
	}
	return tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
}

// backoff computes the pause before retry attempt+1:
// retryDelay * multiplier^attempt plus up to 30% jitter, capped at
// MaxRetryDelayMs.
func (c *Client) backoff(cfg Config, attempt int) time.Duration {
	d := float64(cfg.RetryDelayMs) * math.Pow(cfg.RetryBackoffMultiplier, float64(attempt))
	if cfg.AddJitter {
		d += c.rng.Float64() * 0.3 * d
	}
	if max := float64(cfg.MaxRetryDelayMs); d > max {
		d = max
	}
	return time.Duration(d) * time.Millisecond
}

func (c *Client) nextProfile() fingerprint.Profile {
	c.mu.RLock()
	rotate := c.cfg.RotateFingerprint
	pinned := c.pinned
	c.mu.RUnlock()
	if !rotate {
		return pinned
	}
	return c.fingerprints.Next()
}

func (c *Client) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// AddProxies parses and adds proxy strings to the pool, returning the
// number actually added. Malformed entries are dropped.
func (c *Client) AddProxies(proxies []string) int {
	return c.proxies.AddStrings(proxies)
}

// ResetFailedProxies restores every evicted proxy and zeroes failure
// counts.
func (c *Client) ResetFailedProxies() {
	c.proxies.ResetAll()
}

// UpdateConfig swaps the tunable request/retry/rate settings. The
// proxy rotation policy and eviction threshold stay fixed for the
// lifetime of the client; manage the proxy set through AddProxies and
// ResetFailedProxies.
func (c *Client) UpdateConfig(cfg Config) {
	cfg = cfg.withDefaults()
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.sched.UpdateConfig(cfg.schedulerConfig())
}

// Stats returns the running request counters.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// ResetStats zeroes the running counters and the latency sample.
func (c *Client) ResetStats() {
	c.stats.reset()
}

// RateLimiterStats returns the scheduler's queue and window counters.
func (c *Client) RateLimiterStats() scheduler.Stats {
	return c.sched.Snapshot()
}

// SessionID returns the cookie session identifier.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
