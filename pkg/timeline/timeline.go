// Package timeline keeps the ordered record of judgment observations for a session.
package timeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one observation on the session timeline.
type Entry struct {
	Sequence    int       `json:"sequence"`
	Label       string    `json:"timestamp"`
	Description string    `json:"description"`
	Dangerous   bool      `json:"is_dangerous"`
	RecordedAt  time.Time `json:"recorded_at"`

	// Timestamp text returned by the judgment service. Informational only.
	ReportedTimestamp string `json:"reported_timestamp,omitempty"`
}

// Listener is notified after every append.
type Listener interface {
	OnEntry(sessionID string, entry Entry)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(sessionID string, entry Entry)

// OnEntry calls f.
func (f ListenerFunc) OnEntry(sessionID string, entry Entry) { f(sessionID, entry) }

// Timeline is append-only. Entries are never reordered, deduplicated or pruned.
type Timeline struct {
	sessionID string
	logger    *logrus.Logger

	mu        sync.RWMutex
	entries   []Entry
	listeners []Listener
}

// New creates an empty timeline for a session.
func New(sessionID string, logger *logrus.Logger) *Timeline {
	return &Timeline{
		sessionID: sessionID,
		logger:    logger,
	}
}

// Subscribe registers a listener for future appends.
func (t *Timeline) Subscribe(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Append adds e at the end and returns it with its sequence number assigned.
func (t *Timeline) Append(e Entry) Entry {
	t.mu.Lock()
	e.Sequence = len(t.entries) + 1
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	t.entries = append(t.entries, e)
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"session_id": t.sessionID,
		"sequence":   e.Sequence,
		"label":      e.Label,
		"dangerous":  e.Dangerous,
	}).Debug("Timeline entry appended")

	for _, l := range listeners {
		l.OnEntry(t.sessionID, e)
	}
	return e
}

// Entries returns a copy of all entries in insertion order.
func (t *Timeline) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// DangerousCount returns how many entries were flagged dangerous.
func (t *Timeline) DangerousCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, e := range t.entries {
		if e.Dangerous {
			n++
		}
	}
	return n
}

// FormatElapsed renders a session offset as mm:ss. Minutes are not wrapped at 60.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
