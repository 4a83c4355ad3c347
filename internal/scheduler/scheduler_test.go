package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayAlwaysWithinBounds(t *testing.T) {
	s := New(Config{
		RequestsPerSecond: 2,
		RequestsPerMinute: 5,
		MinDelay:          200 * time.Millisecond,
		MaxDelay:          900 * time.Millisecond,
		Jitter:            true,
		JitterPercent:     0.30,
	}, nil)
	defer s.Stop()

	now := time.Now()
	// Saturate both windows so the displacement branches fire. Entries
	// are kept oldest-first, matching how the drain loop appends them.
	s.mu.Lock()
	for i := 9; i >= 0; i-- {
		s.dispatches = append(s.dispatches, now.Add(-time.Duration(i)*50*time.Millisecond))
	}
	s.mu.Unlock()

	for i := 0; i < 500; i++ {
		d := s.NextDelay(now)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 900*time.Millisecond)
	}
}

func TestSecondWindowDisplacement(t *testing.T) {
	s := New(Config{RequestsPerSecond: 2, RequestsPerMinute: 100, MinDelay: 0, MaxDelay: 5 * time.Second}, nil)
	defer s.Stop()

	now := time.Now()
	elapsed := 400 * time.Millisecond
	s.mu.Lock()
	s.dispatches = []time.Time{now.Add(-elapsed), now.Add(-100 * time.Millisecond)}
	s.mu.Unlock()

	d := s.NextDelay(now)
	assert.GreaterOrEqual(t, d, time.Second-elapsed,
		"third dispatch inside a rolling 1s window must wait out the oldest entry")
}

func TestMinuteWindowDisplacement(t *testing.T) {
	s := New(Config{RequestsPerSecond: 100, RequestsPerMinute: 3, MinDelay: 0, MaxDelay: time.Hour}, nil)
	defer s.Stop()

	now := time.Now()
	s.mu.Lock()
	s.dispatches = []time.Time{
		now.Add(-30 * time.Second),
		now.Add(-20 * time.Second),
		now.Add(-10 * time.Second),
	}
	s.mu.Unlock()

	d := s.NextDelay(now)
	assert.InDelta(t, float64(30*time.Second+windowHeadroom), float64(d), float64(50*time.Millisecond))
}

func TestOldTimestampsPurged(t *testing.T) {
	s := New(Config{RequestsPerSecond: 100, RequestsPerMinute: 2, MinDelay: 0, MaxDelay: time.Hour}, nil)
	defer s.Stop()

	now := time.Now()
	s.mu.Lock()
	s.dispatches = []time.Time{now.Add(-2 * time.Minute), now.Add(-90 * time.Second)}
	s.mu.Unlock()

	assert.Equal(t, time.Duration(0), s.NextDelay(now), "stale entries must not count against the budget")
	s.mu.Lock()
	assert.Empty(t, s.dispatches)
	s.mu.Unlock()
}

func TestFIFOCompletionOrder(t *testing.T) {
	s := New(Config{RequestsPerSecond: 1000, RequestsPerMinute: 100000, MinDelay: 0, MaxDelay: time.Millisecond}, nil)
	defer s.Stop()

	const n = 20
	var mu sync.Mutex
	var completed []int
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(func() error {
				mu.Lock()
				completed = append(completed, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
		// Wait for the task to be queued before submitting the next so
		// submission order is deterministic.
		require.Eventually(t, func() bool {
			st := s.Snapshot()
			return int(st.TotalDispatched)+st.QueueLength == i+1
		}, time.Second, time.Millisecond)
	}
	wg.Wait()

	require.Len(t, completed, n)
	for i, got := range completed {
		assert.Equal(t, i, got, "completion order must match submission order")
	}
}

func TestOneRPSDispatchSpacing(t *testing.T) {
	s := New(Config{RequestsPerSecond: 1, RequestsPerMinute: 1000, MinDelay: 0, MaxDelay: 5 * time.Second}, nil)
	defer s.Stop()

	start := time.Now()
	var mu sync.Mutex
	var at []time.Duration
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(func() error {
				mu.Lock()
				at = append(at, time.Since(start))
				mu.Unlock()
				return nil
			})
		}()
		require.Eventually(t, func() bool {
			st := s.Snapshot()
			return int(st.TotalDispatched)+st.QueueLength == i+1
		}, time.Second, time.Millisecond)
	}
	wg.Wait()

	require.Len(t, at, 3)
	assert.Less(t, at[0], 300*time.Millisecond)
	assert.InDelta(t, float64(1100*time.Millisecond), float64(at[1]), float64(400*time.Millisecond))
	assert.InDelta(t, float64(2200*time.Millisecond), float64(at[2]), float64(500*time.Millisecond))
}

func TestFailingTaskRejectsOnlyItsCaller(t *testing.T) {
	s := New(Config{RequestsPerSecond: 1000, RequestsPerMinute: 100000, MinDelay: 0, MaxDelay: time.Millisecond}, nil)
	defer s.Stop()

	boom := assert.AnError
	err := s.Do(func() error { return boom })
	assert.ErrorIs(t, err, boom)

	err = s.Do(func() error { return nil })
	assert.NoError(t, err, "drain loop must keep going after a task failure")
}

func TestClearQueueRejectsPending(t *testing.T) {
	s := New(Config{RequestsPerSecond: 1, RequestsPerMinute: 1000, MinDelay: 2 * time.Second, MaxDelay: 10 * time.Second}, nil)
	defer s.Stop()

	// First task dispatches immediately and occupies the window; the
	// rest sit behind a long admission delay.
	_ = s.Do(func() error { return nil })

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			errs <- s.Do(func() error { return nil })
		}()
	}
	require.Eventually(t, func() bool {
		return s.Snapshot().QueueLength == 3
	}, time.Second, time.Millisecond)

	s.ClearQueue()
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-errs, ErrQueueCleared)
	}
	assert.Equal(t, 0, s.Snapshot().QueueLength)
}

func TestDoAfterStop(t *testing.T) {
	s := New(Config{}, nil)
	s.Stop()
	err := s.Do(func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueCleared)
}

func TestSnapshotCounts(t *testing.T) {
	s := New(Config{RequestsPerSecond: 1000, RequestsPerMinute: 100000, MinDelay: 0, MaxDelay: time.Millisecond}, nil)
	defer s.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Do(func() error { return nil }))
	}
	st := s.Snapshot()
	assert.Equal(t, uint64(5), st.TotalDispatched)
	assert.Equal(t, 5, st.InLastMinute)
	assert.False(t, st.LastDispatch.IsZero())
}
