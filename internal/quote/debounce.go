package quote

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultDebounceInterval is how long input must stay quiet before a quote
// fetch fires.
const DefaultDebounceInterval = 400 * time.Millisecond

// Scheduler debounces quote work behind rapid input changes. Every Schedule
// call advances a generation counter; when the quiet interval elapses the
// pending work runs tagged with its generation, and Accept rejects results
// whose generation is no longer current. Changing input therefore silently
// retires any in-flight fetch instead of racing it.
type Scheduler struct {
	interval time.Duration
	logger   *zap.Logger

	generation atomic.Uint64
	mounted    atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
}

// NewScheduler creates a mounted scheduler. A non-positive interval falls
// back to the default.
func NewScheduler(interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	s := &Scheduler{
		interval: interval,
		logger:   logger.Named("debounce"),
	}
	s.mounted.Store(true)
	return s
}

// Schedule queues run to fire after the quiet interval, cancelling any
// previously queued work. It returns the generation the work will carry.
func (s *Scheduler) Schedule(run func(generation uint64)) uint64 {
	generation := s.generation.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.interval, func() {
		if !s.Accept(generation) {
			s.logger.Debug("Dropping stale scheduled work",
				zap.Uint64("generation", generation))
			return
		}
		run(generation)
	})
	return generation
}

// Accept reports whether a result tagged with generation is still current.
// Callers check this once more after a slow fetch returns: the generation
// may have moved on while the fetch was in flight.
func (s *Scheduler) Accept(generation uint64) bool {
	return s.mounted.Load() && generation == s.generation.Load()
}

// Invalidate retires all in-flight work without scheduling anything new.
func (s *Scheduler) Invalidate() {
	s.generation.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Unmount permanently stops the scheduler. Pending work is cancelled and
// every later Accept returns false.
func (s *Scheduler) Unmount() {
	s.mounted.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
