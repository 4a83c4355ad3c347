package scheduler

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueCleared is returned to every caller whose task was still
// queued when ClearQueue ran.
var ErrQueueCleared = errors.New("scheduler: queue cleared")

// Config tunes the admission rate budget. Zero numeric fields take the
// defaults below.
type Config struct {
	RequestsPerSecond int           // default 2
	RequestsPerMinute int           // default 30
	MinDelay          time.Duration // default 500ms
	MaxDelay          time.Duration // default 3s
	Jitter            bool          // ±JitterPercent on the computed delay
	JitterPercent     float64       // default 0.30
}

const (
	defaultRequestsPerSecond = 2
	defaultRequestsPerMinute = 30
	defaultMinDelay          = 500 * time.Millisecond
	defaultMaxDelay          = 3 * time.Second
	defaultJitterPercent     = 0.30

	// headroom added on top of window displacement so the oldest entry
	// has fully aged out when the dispatch fires.
	windowHeadroom = 100 * time.Millisecond
)

// DefaultConfig is the stock rate budget: 2 rps, 30 rpm, 500ms-3s
// delay bounds, ±30% jitter.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: defaultRequestsPerSecond,
		RequestsPerMinute: defaultRequestsPerMinute,
		MinDelay:          defaultMinDelay,
		MaxDelay:          defaultMaxDelay,
		Jitter:            true,
		JitterPercent:     defaultJitterPercent,
	}
}

// withDefaults normalizes fields that have no meaningful zero value.
// MinDelay stays as given: zero is a valid floor.
func (c Config) withDefaults() Config {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRequestsPerSecond
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}
	if c.MinDelay < 0 {
		c.MinDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.JitterPercent <= 0 || c.JitterPercent > 1 {
		c.JitterPercent = defaultJitterPercent
	}
	return c
}

type item struct {
	id       uuid.UUID
	run      func() error
	result   chan error
	enqueued time.Time
}

// Scheduler funnels every outbound request through one FIFO queue and
// a single drain goroutine, so at most one task is ever in flight and
// the rate budget stays exact no matter how many callers overlap.
type Scheduler struct {
	mu           sync.Mutex
	cfg          Config
	queue        []*item
	dispatches   []time.Time
	lastDispatch time.Time
	total        uint64
	rng          *rand.Rand
	logger       *zap.Logger

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Stats is a read-only snapshot of the scheduler state.
type Stats struct {
	QueueLength     int
	InLastSecond    int
	InLastMinute    int
	TotalDispatched uint64
	LastDispatch    time.Time
}

// New builds a scheduler and starts its drain loop.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cfg:    cfg.withDefaults(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

// Do enqueues the task and blocks until it settles. Tasks run strictly
// in enqueue order. A task error rejects only its own caller.
func (s *Scheduler) Do(task func() error) error {
	it := &item{
		id:       uuid.New(),
		run:      task,
		result:   make(chan error, 1),
		enqueued: time.Now(),
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return ErrQueueCleared
	default:
	}
	s.queue = append(s.queue, it)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return <-it.result
}

// ClearQueue rejects every pending task with ErrQueueCleared and
// empties the queue. The task currently being delayed is pending too
// and gets rejected along with the rest.
func (s *Scheduler) ClearQueue() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, it := range pending {
		it.result <- ErrQueueCleared
	}
	if len(pending) > 0 {
		s.logger.Debug("queue cleared", zap.Int("rejected", len(pending)))
	}
}

// Stop clears the queue and shuts down the drain loop. The scheduler
// cannot be reused afterwards.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.done) })
	s.ClearQueue()
}

// UpdateConfig swaps the rate budget. Queued tasks pick up the new
// budget as they reach the head of the queue.
func (s *Scheduler) UpdateConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Snapshot returns current rate-limiter stats.
func (s *Scheduler) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.purgeLocked(now)
	return Stats{
		QueueLength:     len(s.queue),
		InLastSecond:    s.countSinceLocked(now.Add(-time.Second)),
		InLastMinute:    len(s.dispatches),
		TotalDispatched: s.total,
		LastDispatch:    s.lastDispatch,
	}
}

func (s *Scheduler) drain() {
	for {
		it := s.peek()
		if it == nil {
			return
		}

		delay := s.NextDelay(time.Now())

		s.mu.Lock()
		wait := delay - time.Since(s.lastDispatch)
		if s.lastDispatch.IsZero() {
			wait = 0
		}
		s.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.done:
				timer.Stop()
				return
			}
		}

		// The head may have been rejected by ClearQueue while we slept.
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0] != it {
			s.mu.Unlock()
			continue
		}
		s.queue = s.queue[1:]
		now := time.Now()
		s.dispatches = append(s.dispatches, now)
		s.lastDispatch = now
		s.total++
		s.mu.Unlock()

		it.result <- it.run()
	}
}

// peek blocks until the queue has a head, without removing it. Returns
// nil once the scheduler is stopped.
func (s *Scheduler) peek() *item {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			it := s.queue[0]
			s.mu.Unlock()
			return it
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
			return nil
		}
	}
}

// NextDelay computes the admission delay for a dispatch at now. The
// result always lands in [MinDelay, MaxDelay], jitter included.
func (s *Scheduler) NextDelay(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(now)
	delay := s.cfg.MinDelay

	secCutoff := now.Add(-time.Second)
	if n := s.countSinceLocked(secCutoff); n >= s.cfg.RequestsPerSecond {
		oldest := s.oldestSinceLocked(secCutoff)
		if d := time.Second - now.Sub(oldest) + windowHeadroom; d > delay {
			delay = d
		}
	}

	if len(s.dispatches) >= s.cfg.RequestsPerMinute {
		oldest := s.dispatches[0]
		if d := time.Minute - now.Sub(oldest) + windowHeadroom; d > delay {
			delay = d
		}
	}

	if s.cfg.Jitter {
		span := float64(delay) * s.cfg.JitterPercent
		delay += time.Duration((s.rng.Float64()*2 - 1) * span)
		if delay < s.cfg.MinDelay {
			delay = s.cfg.MinDelay
		}
	}

	if delay > s.cfg.MaxDelay {
		delay = s.cfg.MaxDelay
	}
	return delay
}

// purgeLocked drops dispatch timestamps older than the 60s window.
func (s *Scheduler) purgeLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(s.dispatches) && !s.dispatches[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.dispatches = append(s.dispatches[:0], s.dispatches[i:]...)
	}
}

func (s *Scheduler) countSinceLocked(cutoff time.Time) int {
	n := 0
	for _, ts := range s.dispatches {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

func (s *Scheduler) oldestSinceLocked(cutoff time.Time) time.Time {
	for _, ts := range s.dispatches {
		if ts.After(cutoff) {
			return ts
		}
	}
	return time.Time{}
}
