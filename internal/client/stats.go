package client

import (
	"sync"
	"time"
)

// latencySampleCap bounds the rolling latency sample used for the
// average-response-time report.
const latencySampleCap = 100

// Stats is a read-only snapshot of the client's counters. It is never
// consulted for control decisions.
type Stats struct {
	TotalRequests   uint64
	Successful      uint64
	Failed          uint64
	Retries         uint64
	AvgResponseTime time.Duration
}

type counters struct {
	mu        sync.Mutex
	total     uint64
	success   uint64
	failed    uint64
	retries   uint64
	latencies []time.Duration
}

func (c *counters) record(success bool, attempts int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if success {
		c.success++
	} else {
		c.failed++
	}
	if attempts > 1 {
		c.retries += uint64(attempts - 1)
	}
	c.latencies = append(c.latencies, elapsed)
	if len(c.latencies) > latencySampleCap {
		c.latencies = c.latencies[len(c.latencies)-latencySampleCap:]
	}
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var avg time.Duration
	if len(c.latencies) > 0 {
		var sum time.Duration
		for _, l := range c.latencies {
			sum += l
		}
		avg = sum / time.Duration(len(c.latencies))
	}
	return Stats{
		TotalRequests:   c.total,
		Successful:      c.success,
		Failed:          c.failed,
		Retries:         c.retries,
		AvgResponseTime: avg,
	}
}

func (c *counters) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total, c.success, c.failed, c.retries = 0, 0, 0, 0
	c.latencies = nil
}
