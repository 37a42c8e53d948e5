package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okonek/matchd/internal/telemetry"
)

type captureWriter struct {
	mu      sync.Mutex
	entries []telemetry.Entry
	err     error
}

func (w *captureWriter) Write(_ context.Context, e telemetry.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
	return w.err
}

func (w *captureWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func TestRecordNeverBlocks(t *testing.T) {
	// No Run loop draining: the queue fills and the overflow policy kicks in.
	sink := telemetry.NewSink(&captureWriter{}, 1, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			sink.Record("sid", "game_info", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked the caller")
	}
	assert.Equal(t, int64(3), sink.Dropped(), "overflow is drop-new")
}

func TestRunDrainsQueue(t *testing.T) {
	w := &captureWriter{}
	sink := telemetry.NewSink(w, 4, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	for i := 0; i < 20; i++ {
		sink.Record("sid", "player_move_displayed", []byte(`{"n":1}`))
	}

	require.Eventually(t, func() bool { return w.count() == 20 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), sink.Dropped())
}

func TestWriterFailuresSwallowed(t *testing.T) {
	w := &captureWriter{err: errors.New("sink offline")}
	sink := telemetry.NewSink(w, 2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	sink.Record("sid", "feedback", nil)
	sink.Record("sid", "feedback", nil)

	// Failures must not propagate anywhere; the attempts still happen.
	require.Eventually(t, func() bool { return w.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestEntryCarriesSessionAndTime(t *testing.T) {
	w := &captureWriter{}
	sink := telemetry.NewSink(w, 1, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	before := time.Now().UTC()
	sink.Record("abc", "connect", nil)

	require.Eventually(t, func() bool { return w.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	w.mu.Lock()
	e := w.entries[0]
	w.mu.Unlock()
	assert.EqualValues(t, "abc", e.SessionID)
	assert.Equal(t, "connect", e.Event)
	assert.False(t, e.Time.Before(before))
}
