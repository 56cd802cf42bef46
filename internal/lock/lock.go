// Package lock serializes mutations per entity group.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskline/internal/domain"
)

// Locker grants exclusive access to a key until the returned unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ErrTimeout is wrapped in a ConflictError when a lock cannot be acquired in time.
var ErrTimeout = errors.New("lock wait timed out")

func TaskKey(taskID string) string { return "task:" + taskID }

func SprintsKey(projectID string) string { return "sprints:" + projectID }

func TimerKey(userID string) string { return "timer:" + userID }

func NotificationsKey(userID string) string { return "notify:" + userID }

func timeoutErr(key string) error {
	return domain.ConflictError{Resource: key, Reason: ErrTimeout.Error()}
}

// Memory is an in-process keyed lock. The zero value is not usable; use NewMemory.
type Memory struct {
	Wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemory(wait time.Duration) *Memory {
	return &Memory{Wait: wait, slots: map[string]*slot{}}
}

func (m *Memory) acquireSlot(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *Memory) releaseSlot(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	s := m.acquireSlot(key)
	var timeout <-chan time.Time
	if m.Wait > 0 {
		timer := time.NewTimer(m.Wait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				m.releaseSlot(key, s)
			})
		}, nil
	case <-timeout:
		m.releaseSlot(key, s)
		return nil, timeoutErr(key)
	case <-ctx.Done():
		m.releaseSlot(key, s)
		return nil, ctx.Err()
	}
}
