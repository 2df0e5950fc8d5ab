package runner

import (
	"sync"
	"time"
)

// TimerHandle is a live periodic timer. Cancel must be safe to call more than once.
type TimerHandle interface {
	Cancel()
}

// Scheduler arms periodic timers. The runner owns at most one handle at a time.
type Scheduler interface {
	Every(interval time.Duration, fn func()) TimerHandle
}

// TickerScheduler fires callbacks from a time.Ticker on a dedicated goroutine.
type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) TimerHandle {
	h := &tickerHandle{
		ticker: time.NewTicker(interval),
		stop:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-h.ticker.C:
				fn()
			case <-h.stop:
				return
			}
		}
	}()
	return h
}

type tickerHandle struct {
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func (h *tickerHandle) Cancel() {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.stop)
	})
}

// ManualScheduler never fires on its own; Fire invokes the callback of the live
// timer. It is meant for tests and step-driven hosts.
type ManualScheduler struct {
	mu       sync.Mutex
	armed    int
	live     *manualHandle
	interval time.Duration
}

type manualHandle struct {
	fn        func()
	cancelled bool
	owner     *ManualScheduler
}

func (s *ManualScheduler) Every(interval time.Duration, fn func()) TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &manualHandle{fn: fn, owner: s}
	s.armed++
	s.live = h
	s.interval = interval
	return h
}

func (h *manualHandle) Cancel() {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	h.cancelled = true
	if h.owner.live == h {
		h.owner.live = nil
	}
}

// Fire runs the live timer's callback once. It reports false when no timer is live.
func (s *ManualScheduler) Fire() bool {
	s.mu.Lock()
	h := s.live
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h.fn()
	return true
}

// Live reports whether a timer is armed and not cancelled.
func (s *ManualScheduler) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live != nil
}

// Armed is the number of timers created so far.
func (s *ManualScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}
