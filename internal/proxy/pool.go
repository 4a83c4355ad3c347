package proxy

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Policy selects how the pool rotates endpoints.
type Policy string

const (
	// RoundRobin cycles through eligible endpoints in order.
	RoundRobin Policy = "round-robin"
	// Random picks uniformly among eligible endpoints.
	Random Policy = "random"
	// LeastUsed picks the endpoint with the oldest LastUsedAt.
	LeastUsed Policy = "least-used"
	// LeastFailures picks the endpoint with the smallest FailureCount.
	LeastFailures Policy = "least-failures"
)

// DefaultMaxFailures is the eviction threshold when the caller passes 0.
const DefaultMaxFailures = 3

// Pool owns a set of proxy endpoints and tracks their health. An
// endpoint whose FailureCount reaches maxFailures is moved to the
// evicted set and never selected again until Reset or ResetAll.
type Pool struct {
	mu          sync.Mutex
	policy      Policy
	maxFailures int
	endpoints   []*Endpoint
	evicted     map[string]*Endpoint
	cursor      int
	rng         *rand.Rand
	logger      *zap.Logger
}

// NewPool builds an empty pool. A nil logger is replaced with a nop
// logger; an unrecognized policy falls back to RoundRobin.
func NewPool(policy Policy, maxFailures int, logger *zap.Logger) *Pool {
	switch policy {
	case RoundRobin, Random, LeastUsed, LeastFailures:
	default:
		policy = RoundRobin
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		policy:      policy,
		maxFailures: maxFailures,
		evicted:     make(map[string]*Endpoint),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger,
	}
}

// AddStrings parses and adds proxy strings. Malformed entries are
// dropped with a warning, never fatal. Returns the number added.
func (p *Pool) AddStrings(raws []string) int {
	added := 0
	for _, raw := range raws {
		e, err := Parse(raw)
		if err != nil {
			p.logger.Warn("dropping malformed proxy", zap.String("proxy", raw), zap.Error(err))
			continue
		}
		if p.Add(e) {
			added++
		}
	}
	return added
}

// Add inserts an endpoint, deduplicating on (scheme, host, port).
// Returns false if an endpoint with the same identity already exists,
// including evicted ones.
func (p *Pool) Add(e *Endpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := e.Key()
	if _, ok := p.evicted[key]; ok {
		return false
	}
	for _, cur := range p.endpoints {
		if cur.Key() == key {
			return false
		}
	}
	p.endpoints = append(p.endpoints, e)
	return true
}

// Remove drops the endpoint with the same identity from both the
// active and evicted sets. In-flight selections keep their reference.
func (p *Pool) Remove(e *Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := e.Key()
	delete(p.evicted, key)
	for i, cur := range p.endpoints {
		if cur.Key() == key {
			p.endpoints = append(p.endpoints[:i], p.endpoints[i+1:]...)
			return
		}
	}
}

// Next selects an eligible endpoint per the pool policy, or nil when
// none are eligible. Selection stamps LastUsedAt.
func (p *Pool) Next() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil
	}

	var e *Endpoint
	switch p.policy {
	case Random:
		e = p.endpoints[p.rng.Intn(len(p.endpoints))]
	case LeastUsed:
		e = p.pickLocked(func(a, b *Endpoint) bool { return a.LastUsedAt.Before(b.LastUsedAt) })
	case LeastFailures:
		e = p.pickLocked(func(a, b *Endpoint) bool { return a.FailureCount < b.FailureCount })
	default:
		e = p.endpoints[p.cursor%len(p.endpoints)]
		p.cursor++
	}

	e.LastUsedAt = time.Now()
	return e
}

// pickLocked returns the minimum endpoint under less, breaking ties
// randomly among the tied set.
func (p *Pool) pickLocked(less func(a, b *Endpoint) bool) *Endpoint {
	best := p.endpoints[0]
	for _, e := range p.endpoints[1:] {
		if less(e, best) {
			best = e
		}
	}
	tied := make([]*Endpoint, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		if !less(e, best) && !less(best, e) {
			tied = append(tied, e)
		}
	}
	return tied[p.rng.Intn(len(tied))]
}

// MarkSuccess bumps SuccessCount and forgives one past failure,
// floored at zero.
func (p *Pool) MarkSuccess(e *Endpoint) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e.SuccessCount++
	if e.FailureCount > 0 {
		e.FailureCount--
	}
}

// MarkFailure bumps FailureCount and evicts the endpoint once it
// reaches the threshold.
func (p *Pool) MarkFailure(e *Endpoint) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e.FailureCount++
	if e.FailureCount < p.maxFailures {
		return
	}

	key := e.Key()
	for i, cur := range p.endpoints {
		if cur.Key() == key {
			p.endpoints = append(p.endpoints[:i], p.endpoints[i+1:]...)
			p.evicted[key] = cur
			p.logger.Warn("proxy evicted",
				zap.String("proxy", key),
				zap.Int("failures", cur.FailureCount),
			)
			return
		}
	}
}

// Reset clears the endpoint's failure count and restores it to the
// eligible set if it was evicted.
func (p *Pool) Reset(e *Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked(e)
}

// ResetAll restores every evicted endpoint and zeroes all failure
// counts.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.endpoints {
		e.FailureCount = 0
	}
	for key, e := range p.evicted {
		e.FailureCount = 0
		p.endpoints = append(p.endpoints, e)
		delete(p.evicted, key)
	}
}

func (p *Pool) resetLocked(e *Endpoint) {
	key := e.Key()
	if cur, ok := p.evicted[key]; ok {
		cur.FailureCount = 0
		p.endpoints = append(p.endpoints, cur)
		delete(p.evicted, key)
		return
	}
	for _, cur := range p.endpoints {
		if cur.Key() == key {
			cur.FailureCount = 0
			return
		}
	}
}

// Len returns the number of eligible endpoints.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// EvictedLen returns the number of evicted endpoints.
func (p *Pool) EvictedLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.evicted)
}
