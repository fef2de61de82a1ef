package job

import (
	"sync"
	"time"
)

// Scheduler arms one-shot expiry deadlines for jobs. Arming is best-effort
// and lost on process restart; a durable implementation would persist the
// deadline and re-scan on startup.
type Scheduler interface {
	// Arm schedules fn to run once at the given time. Re-arming the same
	// job replaces the previous deadline.
	Arm(jobID string, at time.Time, fn func())

	// Cancel drops a pending deadline, if any.
	Cancel(jobID string)

	// Close cancels every pending deadline.
	Close()
}

// TimerScheduler implements Scheduler with in-process timers.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewTimerScheduler creates a scheduler backed by time.AfterFunc.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

// Arm implements Scheduler.
func (s *TimerScheduler) Arm(jobID string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
	}
	s.timers[jobID] = time.AfterFunc(time.Until(at), func() {
		s.mu.Lock()
		delete(s.timers, jobID)
		s.mu.Unlock()
		fn()
	})
}

// Cancel implements Scheduler.
func (s *TimerScheduler) Cancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
}

// Close implements Scheduler.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
