// Package session holds the identity and clock of one monitoring run.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Session is one interview monitoring run, from Start to Stop.
//
// Elapsed time is non-decreasing while the session is active and frozen once
// it stops. It is never negative, even if the wall clock moves backwards.
type Session struct {
	ID   string
	Mode Mode

	clock Clock

	mu        sync.RWMutex
	startedAt time.Time
	stoppedAt time.Time
	frozen    time.Duration
	lastSeen  time.Duration
	active    bool
}

// New creates and starts a session in the given mode.
func New(mode Mode, clock Clock) *Session {
	if clock == nil {
		clock = time.Now
	}
	return &Session{
		ID:        uuid.New().String(),
		Mode:      mode,
		clock:     clock,
		startedAt: clock(),
		active:    true,
	}
}

// StartedAt returns the wall-clock start time.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// StoppedAt returns the stop time, zero while active.
func (s *Session) StoppedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stoppedAt
}

// Active reports whether the session has not been stopped.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Elapsed returns time since start, or the frozen value after Stop.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return s.frozen
	}
	return s.observeLocked()
}

func (s *Session) observeLocked() time.Duration {
	d := s.clock().Sub(s.startedAt)
	if d < s.lastSeen {
		d = s.lastSeen
	}
	s.lastSeen = d
	return d
}

// Stop freezes the elapsed clock. It returns false if the session was already stopped.
func (s *Session) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return false
	}
	s.frozen = s.observeLocked()
	s.stoppedAt = s.clock()
	s.active = false
	return true
}
