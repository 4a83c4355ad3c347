package fingerprint

import (
	"math/rand"
	"sync"
	"time"
)

// Policy selects how the pool hands out profiles.
type Policy string

const (
	// RoundRobin cycles through the catalog in order.
	RoundRobin Policy = "round-robin"
	// Random picks uniformly.
	Random Policy = "random"
	// Weighted always picks one of the least-used profiles, breaking
	// ties randomly.
	Weighted Policy = "weighted"
)

// Pool hands out browser identities. All state is guarded by mu; usage
// counts increment on every Next regardless of policy.
type Pool struct {
	mu       sync.Mutex
	policy   Policy
	profiles []Profile
	usage    []int
	cursor   int
	rng      *rand.Rand
}

// NewPool builds a pool seeded with the built-in catalog. An
// unrecognized policy falls back to Random.
func NewPool(policy Policy) *Pool {
	switch policy {
	case RoundRobin, Random, Weighted:
	default:
		policy = Random
	}
	profiles := builtinProfiles()
	return &Pool{
		policy:   policy,
		profiles: profiles,
		usage:    make([]int, len(profiles)),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add appends a profile to the catalog.
func (p *Pool) Add(profile Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles = append(p.profiles, profile)
	p.usage = append(p.usage, 0)
}

// Generate appends n randomized profiles in addition to the built-in
// catalog.
func (p *Pool) Generate(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.profiles = append(p.profiles, generateProfile(p.rng))
		p.usage = append(p.usage, 0)
	}
}

// Next selects a profile according to the pool policy and bumps its
// usage count.
func (p *Pool) Next() Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idx int
	switch p.policy {
	case RoundRobin:
		idx = p.cursor % len(p.profiles)
		p.cursor++
	case Weighted:
		idx = p.leastUsedLocked()
	default:
		idx = p.rng.Intn(len(p.profiles))
	}

	p.usage[idx]++
	return p.profiles[idx]
}

// leastUsedLocked returns the index of one of the least-used profiles,
// chosen randomly among ties.
func (p *Pool) leastUsedLocked() int {
	min := p.usage[0]
	for _, u := range p.usage[1:] {
		if u < min {
			min = u
		}
	}
	tied := make([]int, 0, len(p.usage))
	for i, u := range p.usage {
		if u == min {
			tied = append(tied, i)
		}
	}
	return tied[p.rng.Intn(len(tied))]
}

// Size returns the catalog size.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.profiles)
}

// Usage returns a copy of the per-profile usage counts.
func (p *Pool) Usage() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.usage))
	copy(out, p.usage)
	return out
}
