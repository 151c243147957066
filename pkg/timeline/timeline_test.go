package timeline

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTimeline() *Timeline {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New("session-1", logger)
}

func TestFormatElapsed(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                 "00:00",
		999 * time.Millisecond:            "00:00",
		5 * time.Second:                   "00:05",
		65 * time.Second:                  "01:05",
		59*time.Minute + 59*time.Second:   "59:59",
		125*time.Minute + 7*time.Second:   "125:07",
		-3 * time.Second:                  "00:00",
	}
	for d, want := range cases {
		assert.Equal(t, want, FormatElapsed(d), "duration %s", d)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	tl := newTestTimeline()

	tl.Append(Entry{Label: "00:10", Description: "looking at notes", Dangerous: true})
	tl.Append(Entry{Label: "00:10", Description: "typing"})
	tl.Append(Entry{Label: "00:20", Description: "phone visible", Dangerous: true})

	entries := tl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{entries[0].Sequence, entries[1].Sequence, entries[2].Sequence})
	assert.Equal(t, "looking at notes", entries[0].Description)
	assert.Equal(t, "typing", entries[1].Description)
	assert.Equal(t, "00:10", entries[1].Label, "identical labels are kept as distinct entries")
	assert.Equal(t, 2, tl.DangerousCount())
	assert.False(t, entries[0].RecordedAt.IsZero())
}

func TestEntriesReturnsCopy(t *testing.T) {
	tl := newTestTimeline()
	tl.Append(Entry{Label: "00:01", Description: "original"})

	entries := tl.Entries()
	entries[0].Description = "mutated"

	assert.Equal(t, "original", tl.Entries()[0].Description)
}

func TestListenersNotifiedAfterAppend(t *testing.T) {
	tl := newTestTimeline()

	var got []Entry
	tl.Subscribe(ListenerFunc(func(sessionID string, e Entry) {
		assert.Equal(t, "session-1", sessionID)
		assert.Equal(t, e.Sequence, tl.Len(), "listener sees the entry already stored")
		got = append(got, e)
	}))

	tl.Append(Entry{Label: "00:03", Description: "a"})
	tl.Append(Entry{Label: "00:04", Description: "b"})

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].Description)
}

func TestConcurrentAppend(t *testing.T) {
	tl := newTestTimeline()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tl.Append(Entry{Label: "00:00", Description: "x"})
		}()
	}
	wg.Wait()

	entries := tl.Entries()
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Sequence)
	}
}
