package quote

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSchedulerFiresAfterQuietInterval(t *testing.T) {
	s := NewScheduler(5*time.Millisecond, zaptest.NewLogger(t))
	defer s.Unmount()

	fired := make(chan uint64, 1)
	generation := s.Schedule(func(g uint64) { fired <- g })

	select {
	case got := <-fired:
		assert.Equal(t, generation, got)
	case <-time.After(time.Second):
		t.Fatal("scheduled work never fired")
	}
}

func TestSchedulerSupersedesPendingWork(t *testing.T) {
	s := NewScheduler(20*time.Millisecond, zaptest.NewLogger(t))
	defer s.Unmount()

	var mu sync.Mutex
	var fired []uint64
	record := func(g uint64) {
		mu.Lock()
		fired = append(fired, g)
		mu.Unlock()
	}

	first := s.Schedule(record)
	second := s.Schedule(record)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 1)
	assert.Equal(t, second, fired[0])
	assert.NotEqual(t, first, fired[0])
}

func TestSchedulerRejectsStaleResults(t *testing.T) {
	s := NewScheduler(time.Millisecond, zaptest.NewLogger(t))
	defer s.Unmount()

	// A slow fetch for generation A finishes after the user typed a new
	// amount (generation B). A's result must be discarded.
	genA := s.Schedule(func(uint64) {})
	genB := s.Schedule(func(uint64) {})

	assert.False(t, s.Accept(genA))
	assert.True(t, s.Accept(genB))
}

func TestSchedulerInvalidateRetiresEverything(t *testing.T) {
	s := NewScheduler(time.Millisecond, zaptest.NewLogger(t))
	defer s.Unmount()

	generation := s.Schedule(func(uint64) {})
	s.Invalidate()
	assert.False(t, s.Accept(generation))
}

func TestSchedulerUnmountStopsAcceptance(t *testing.T) {
	s := NewScheduler(time.Millisecond, zaptest.NewLogger(t))

	generation := s.Schedule(func(uint64) {})
	s.Unmount()

	assert.False(t, s.Accept(generation))
}
