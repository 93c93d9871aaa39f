package storage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/dialogue-engine/pkg/state"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, time.Hour, slog.Default()), mr
}

func TestSessionStoreAppendAndHistory(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	turns := []state.DialogueTurn{
		{Player: "Who goes there?", NPC: "State your business."},
		{Player: "A friend.", NPC: "We shall see."},
		{Player: "Open up.", NPC: "Not yet."},
	}
	for _, turn := range turns {
		require.NoError(t, store.AppendTurn(ctx, "sess-1", turn))
	}

	got, err := store.History(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Equal(t, turns, got)

	last, err := store.History(ctx, "sess-1", 2)
	require.NoError(t, err)
	assert.Equal(t, turns[1:], last)
}

func TestSessionStoreUnknownSession(t *testing.T) {
	store, _ := newTestSessionStore(t)

	got, err := store.History(context.Background(), "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSessionStoreTTLRefresh(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "sess-1", state.DialogueTurn{Player: "Hi", NPC: "Hm."}))
	assert.Greater(t, mr.TTL(sessionKey("sess-1")), time.Duration(0))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.AppendTurn(ctx, "sess-1", state.DialogueTurn{Player: "Still here", NPC: "So I see."}))
	assert.Equal(t, time.Hour, mr.TTL(sessionKey("sess-1")))
}

func TestSessionStoreDelete(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "sess-1", state.DialogueTurn{Player: "Hi", NPC: "Hm."}))
	require.NoError(t, store.Delete(ctx, "sess-1"))

	got, err := store.History(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
