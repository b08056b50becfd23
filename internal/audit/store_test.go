package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicelink/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRecordAndQueryByTrace(t *testing.T) {
	store := newTestStore(t)

	store.Record(domain.TraceEvent{TraceID: "t1", Stage: "resolver", Event: "bundle_id", Changed: true, Message: "com.example.notes"})
	store.Record(domain.TraceEvent{TraceID: "t1", Stage: "insertion", Event: "attached"})
	store.Record(domain.TraceEvent{TraceID: "t2", Stage: "resolver", Event: "yield_foreground"})

	events, err := store.EventsForTrace("t1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "bundle_id", events[0].Event)
	assert.True(t, events[0].Changed)
	assert.Equal(t, "com.example.notes", events[0].Message)
	assert.Equal(t, "insertion", events[1].Stage)
	assert.WithinDuration(t, time.Now(), events[0].CreatedAt, 5*time.Second)
}

func TestStoreQueryByStage(t *testing.T) {
	store := newTestStore(t)

	store.Record(domain.TraceEvent{TraceID: "t1", Stage: "resolver", Event: "process_name_exact"})
	store.Record(domain.TraceEvent{TraceID: "t2", Stage: "resolver", Event: "pid_proxy"})
	store.Record(domain.TraceEvent{TraceID: "t2", Stage: "polish", Event: "applied", Changed: true})

	events, err := store.EventsForStage("resolver")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "process_name_exact", events[0].Event)
	assert.Equal(t, "pid_proxy", events[1].Event)
}

func TestStoreUnknownTraceIsEmptyNotError(t *testing.T) {
	store := newTestStore(t)

	events, err := store.EventsForTrace("missing")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStoreDebugEvents(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AppendDebugEvent("wrote intent", "extension", "mailbox"))

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM debug_events`).Scan(&count))
	assert.Equal(t, 1, count)
}
