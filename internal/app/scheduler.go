package app

import (
	"sync"
	"time"
)

// CompletionScheduler runs one delayed task per key. Scheduling a key that
// already has a pending task replaces it.
type CompletionScheduler struct {
	mu    sync.Mutex
	tasks map[int64]*scheduledTask
}

type scheduledTask struct {
	timer *time.Timer
}

func NewCompletionScheduler() *CompletionScheduler {
	return &CompletionScheduler{tasks: make(map[int64]*scheduledTask)}
}

// Schedule runs fn after delay unless the key is cancelled or rescheduled first.
func (s *CompletionScheduler) Schedule(key int64, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}
	task := &scheduledTask{}
	task.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current, ok := s.tasks[key]
		if !ok || current != task {
			s.mu.Unlock()
			return
		}
		delete(s.tasks, key)
		s.mu.Unlock()
		fn()
	})
	s.tasks[key] = task
}

// Cancel drops the pending task of key and reports whether one existed.
func (s *CompletionScheduler) Cancel(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(s.tasks, key)
	return true
}

// Pending reports whether key has a task waiting to run.
func (s *CompletionScheduler) Pending(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Stop cancels every pending task.
func (s *CompletionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, key)
	}
}
