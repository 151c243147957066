// Package storage persists finished session records outside the process.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/timeline"
)

// SessionRecord is the externally stored summary of one monitoring session
type SessionRecord struct {
	SessionID     string           `json:"session_id"`
	MonitorID     string           `json:"monitor_id"`
	Mode          string           `json:"mode"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       time.Time        `json:"ended_at,omitempty"`
	Elapsed       time.Duration    `json:"elapsed_ns"`
	Escalation    escalation.State `json:"escalation"`
	Timeline      []timeline.Entry `json:"timeline"`
	Transcript    string           `json:"transcript,omitempty"`
	RecordingSize int64            `json:"recording_size"`
	LastUpdate    time.Time        `json:"last_update"`

	// Report is the encoded review report, set when the session stops
	Report json.RawMessage `json:"report,omitempty"`
}

// Store saves and loads session records
type Store interface {
	Save(ctx context.Context, record SessionRecord) error
	Load(ctx context.Context, sessionID string) (SessionRecord, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context, monitorID string) ([]SessionRecord, error)
	Close() error
}
