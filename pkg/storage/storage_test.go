package storage

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/timeline"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(monitorID string, started time.Time) SessionRecord {
	return SessionRecord{
		SessionID: uuid.NewString(),
		MonitorID: monitorID,
		Mode:      "normal",
		StartedAt: started,
		EndedAt:   started.Add(2 * time.Minute),
		Elapsed:   2 * time.Minute,
		Escalation: escalation.State{
			Count:      3,
			AlertFired: true,
			Tier:       escalation.TierEscalated,
			History:    []escalation.Strike{{Number: 1, Label: "00:10", Reason: "phone"}},
		},
		Timeline: []timeline.Entry{{Sequence: 1, Label: "00:10", Description: "phone", Dangerous: true}},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := sampleRecord("m1", time.Now())
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, rec.MonitorID, loaded.MonitorID)
	assert.Equal(t, escalation.TierEscalated, loaded.Escalation.Tier)
	assert.False(t, loaded.LastUpdate.IsZero())

	require.NoError(t, store.Delete(ctx, rec.SessionID))
	_, err = store.Load(ctx, rec.SessionID)
	assert.True(t, errors.IsErrorType(err, errors.ErrNotFound))
}

func TestMemoryStoreRejectsEmptyID(t *testing.T) {
	err := NewMemoryStore().Save(context.Background(), SessionRecord{})
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))
}

func TestMemoryStoreListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	later := sampleRecord("m1", base.Add(time.Hour))
	earlier := sampleRecord("m1", base)
	other := sampleRecord("m2", base)
	for _, r := range []SessionRecord{later, earlier, other} {
		require.NoError(t, store.Save(ctx, r))
	}

	list, err := store.List(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, earlier.SessionID, list[0].SessionID)
	assert.Equal(t, later.SessionID, list[1].SessionID)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordJSONRoundTrip(t *testing.T) {
	rec := sampleRecord("m1", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	rec.Transcript = "walk me through the design"
	rec.Report = json.RawMessage(`{"recommendation":"review"}`)
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tier":"escalated"`)
	assert.Contains(t, string(data), `"report":{"recommendation":"review"}`)

	var decoded SessionRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec.Escalation.Tier, decoded.Escalation.Tier)
	assert.Equal(t, rec.Timeline, decoded.Timeline)
	assert.Equal(t, rec.Transcript, decoded.Transcript)
	assert.JSONEq(t, string(rec.Report), string(decoded.Report))
}

// Runs against a real server when REDIS_TEST_ADDRESS is set.
func TestRedisStoreIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	prefix := "interview-monitor-test:" + uuid.NewString() + ":"
	store, err := NewRedisStore(RedisConfig{Address: addr, KeyPrefix: prefix, TTL: time.Minute}, logger)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	rec := sampleRecord("m1", time.Now())
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, rec.Escalation.Count, loaded.Escalation.Count)

	list, err := store.List(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, rec.SessionID))
	_, err = store.Load(ctx, rec.SessionID)
	assert.True(t, errors.IsErrorType(err, errors.ErrNotFound))
	require.NoError(t, store.Health(ctx))
}

func TestRedisStoreUnreachable(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	_, err := NewRedisStore(RedisConfig{Address: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, logger)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrUnavailable))
}
