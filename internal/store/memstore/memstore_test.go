package memstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "rooms/a")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Create(ctx, "rooms/a", json.RawMessage(`{"offer":{"type":"offer","sdp":"v=0"}}`)))
	assert.ErrorIs(t, s.Create(ctx, "/rooms/a/", json.RawMessage(`{}`)), core.ErrAlreadyExists)

	doc, err := s.Get(ctx, "rooms/a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.ID)
	assert.JSONEq(t, `{"offer":{"type":"offer","sdp":"v=0"}}`, string(doc.Data))

	answer := map[string]json.RawMessage{"answer": json.RawMessage(`{"type":"answer","sdp":"v=1"}`)}
	require.NoError(t, s.Update(ctx, "rooms/a", answer, "answer"))
	assert.ErrorIs(t, s.Update(ctx, "rooms/a", answer, "answer"), core.ErrConflict)
	assert.ErrorIs(t, s.Update(ctx, "rooms/missing", answer, ""), core.ErrNotFound)

	doc, err = s.Get(ctx, "rooms/a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"offer":{"type":"offer","sdp":"v=0"},"answer":{"type":"answer","sdp":"v=1"}}`, string(doc.Data))
}

func TestCreateRejectsNonObject(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Create(context.Background(), "rooms/a", json.RawMessage(`[1,2]`)), core.ErrInvalid)
	_, err := s.Add(context.Background(), "rooms/a/c", json.RawMessage(`"x"`))
	assert.ErrorIs(t, err, core.ErrInvalid)
	assert.ErrorIs(t, s.Create(context.Background(), "/", json.RawMessage(`{}`)), core.ErrInvalid)
}

func TestWatchDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	snaps, err := s.WatchDocument(ctx, "rooms/a")
	require.NoError(t, err)

	first := recv(t, snaps)
	assert.False(t, first.Exists)

	require.NoError(t, s.Create(ctx, "rooms/a", json.RawMessage(`{"offer":{}}`)))
	second := recv(t, snaps)
	assert.True(t, second.Exists)
	assert.Equal(t, "a", second.Document.ID)

	require.NoError(t, s.Update(ctx, "rooms/a", map[string]json.RawMessage{"answer": json.RawMessage(`{}`)}, ""))
	third := recv(t, snaps)
	assert.Contains(t, string(third.Document.Data), "answer")

	cancel()
	assert.Eventually(t, func() bool { return s.WatcherCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWatchCollectionReplaysExisting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	id1, err := s.Add(ctx, "rooms/a/callerCandidates", json.RawMessage(`{"candidate":"one"}`))
	require.NoError(t, err)

	changes, err := s.WatchCollection(ctx, "rooms/a/callerCandidates")
	require.NoError(t, err)

	id2, err := s.Add(ctx, "rooms/a/callerCandidates", json.RawMessage(`{"candidate":"two"}`))
	require.NoError(t, err)
	_, err = s.Add(ctx, "rooms/a/calleeCandidates", json.RawMessage(`{"candidate":"other"}`))
	require.NoError(t, err)

	c1 := recv(t, changes)
	c2 := recv(t, changes)
	assert.Equal(t, core.ChangeAdded, c1.Type)
	assert.Equal(t, id1, c1.Document.ID)
	assert.Equal(t, id2, c2.Document.ID)

	select {
	case c := <-changes:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Len(t, s.Records("rooms/a/callerCandidates"), 2)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
	}
	var zero T
	return zero
}
