package intentstore

import (
	"os"
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
	return store
}

func TestConsumePendingIntentAtMostOnce(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SetPendingIntent(domain.PendingIntent{Kind: domain.IntentKindVoice}))

	first, err := store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, domain.IntentKindVoice, first.Kind)

	second, err := store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second, "second consume must return nothing")
}

func TestConsumePendingIntentStaleNeverReturned(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	for _, kind := range []domain.IntentKind{domain.IntentKindVoice, domain.IntentKindSettings} {
		past := time.Now().Add(-time.Hour)
		require.NoError(t, store.SetPendingIntent(domain.PendingIntent{Kind: kind, CreatedAt: past}))

		intent, err := store.ConsumePendingIntent(30 * time.Second)
		require.NoError(t, err)
		assert.Nil(t, intent, "stale %s intent must not be delivered", kind)

		// The stale intent is cleared, not left to rot.
		intent, err = store.ConsumePendingIntent(time.Hour * 2)
		require.NoError(t, err)
		assert.Nil(t, intent)
	}
}

func TestConsumeOnEmptyStoreIsNotAnError(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	intent, err := store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	assert.Nil(t, intent)
}

func TestEmptyConsumeDoesNotCreateMailbox(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	_, err = store.TakeReturnTarget()
	require.NoError(t, err)

	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr), "a consume that found nothing must not write the mailbox")
}

func TestEmptyConsumeLeavesDocumentUntouched(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	// Only a return target is parked; no intent is pending. The host polls
	// ConsumePendingIntent continuously in exactly this state.
	require.NoError(t, store.SetReturnTarget(domain.ReturnTarget{BundleID: "com.example.notes"}))
	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	intent, err := store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	require.Nil(t, intent)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after, "an idle poll must leave the document byte-identical")

	// A sender write landing after the idle poll is delivered intact.
	require.NoError(t, store.SetPendingIntent(domain.PendingIntent{Kind: domain.IntentKindVoice}))
	intent, err = store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, domain.IntentKindVoice, intent.Kind)
}

func TestNewIntentOverwritesPrevious(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SetPendingIntent(domain.PendingIntent{Kind: domain.IntentKindSettings}))
	require.NoError(t, store.SetPendingIntent(domain.PendingIntent{Kind: domain.IntentKindVoice}))

	intent, err := store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, domain.IntentKindVoice, intent.Kind, "last write wins")
}

func TestReturnTargetTakeClears(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SetReturnTarget(domain.ReturnTarget{BundleID: "com.example.notes"}))

	target, err := store.TakeReturnTarget()
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "com.example.notes", target.BundleID)
	assert.False(t, target.CapturedAt.IsZero())

	target, err = store.TakeReturnTarget()
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestCorruptMailboxReadsAsEmpty(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	intent, err := store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	assert.Nil(t, intent)

	// The store recovers on the next write.
	require.NoError(t, store.SetPendingIntent(domain.PendingIntent{Kind: domain.IntentKindVoice}))
	intent, err = store.ConsumePendingIntent(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, intent)
}

func TestMarkAcknowledgedPersists(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SetPendingIntent(domain.PendingIntent{Kind: domain.IntentKindVoice}))
	require.NoError(t, store.MarkAcknowledged())

	contents, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(contents), "launchAcknowledgedAt")
}
