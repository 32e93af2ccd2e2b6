package controller

import (
	"sync"
	"time"
)

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// TimerScheduler schedules on real timers.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// ManualScheduler queues callbacks until they are fired explicitly, so
// callers decide when simulated latency elapses.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *ManualScheduler) AfterFunc(_ time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, f)
}

// Pending reports how many callbacks are queued.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// FireNext runs the oldest queued callback and reports whether there was one.
func (s *ManualScheduler) FireNext() bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	f()
	return true
}

// FireAll runs queued callbacks in order until the queue is empty.
func (s *ManualScheduler) FireAll() {
	for s.FireNext() {
	}
}
