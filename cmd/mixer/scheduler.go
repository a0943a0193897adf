package mixer

import (
	"strings"
	"sync"
	"time"
)

// Clock creates timers. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// scheduler runs delayed actions keyed by name. Scheduling under a key that
// already has a pending action replaces it.
type scheduler struct {
	clock Clock

	mu      sync.Mutex
	pending map[string]*scheduledAction
	seq     uint64
}

type scheduledAction struct {
	seq   uint64
	timer Timer
}

func newScheduler(clock Clock) *scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &scheduler{
		clock:   clock,
		pending: make(map[string]*scheduledAction),
	}
}

func (s *scheduler) schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}
	s.seq++
	action := &scheduledAction{seq: s.seq}
	s.pending[key] = action
	action.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		cur, ok := s.pending[key]
		if !ok || cur != action {
			s.mu.Unlock()
			return
		}
		delete(s.pending, key)
		s.mu.Unlock()
		fn()
	})
}

func (s *scheduler) cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.pending[key]
	if !ok {
		return false
	}
	action.timer.Stop()
	delete(s.pending, key)
	return true
}

func (s *scheduler) cancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, action := range s.pending {
		if strings.HasPrefix(key, prefix) {
			action.timer.Stop()
			delete(s.pending, key)
			n++
		}
	}
	return n
}

func (s *scheduler) isPending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

func (s *scheduler) cancelAll() {
	s.cancelPrefix("")
}
