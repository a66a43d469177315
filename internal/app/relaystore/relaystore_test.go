package relaystore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/dkeye/P2PCall/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	offer  = domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 offer"}
	answer = domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 answer"}
)

func strPtr(s string) *string { return &s }
func u16Ptr(v uint16) *uint16 { return &v }

func TestOfferAnswerWriteOnce(t *testing.T) {
	ctx := context.Background()
	c := New(memstore.New())

	h := c.CreateRoom(ctx)
	require.NotEmpty(t, h.ID)

	_, _, err := c.GetRoom(ctx, h.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	require.NoError(t, c.SetRoomOffer(ctx, h, offer))
	assert.Error(t, c.SetRoomOffer(ctx, h, offer))

	_, room, err := c.GetRoom(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, offer, *room.Offer)
	assert.Nil(t, room.Answer)

	require.NoError(t, c.SetRoomAnswer(ctx, h, answer))
	assert.ErrorIs(t, c.SetRoomAnswer(ctx, h, answer), domain.ErrAlreadyAnswered)

	_, room, err = c.GetRoom(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, offer, *room.Offer)
	assert.Equal(t, answer, *room.Answer)
}

func TestSetRoomAnswerMissingRoom(t *testing.T) {
	c := New(memstore.New())
	err := c.SetRoomAnswer(context.Background(), RoomHandle{ID: "nope"}, answer)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestGetRoomWithoutOffer(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Create(ctx, "rooms/empty", json.RawMessage(`{}`)))
	require.NoError(t, s.Create(ctx, "rooms/bad", json.RawMessage(`{"offer":{"type":"bogus","sdp":"x"}}`)))

	c := New(s)
	_, _, err := c.GetRoom(ctx, "empty")
	assert.ErrorIs(t, err, domain.ErrMalformedRoom)
	_, _, err = c.GetRoom(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrMalformedRoom)
	_, _, err = c.GetRoom(ctx, "")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCandidateRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(memstore.New())
	h := c.CreateRoom(ctx)

	changes, err := c.SubscribeCandidates(ctx, h, domain.CallerCandidates)
	require.NoError(t, err)

	want := domain.Candidate{
		Candidate:        "candidate:1 1 udp 2130706431 192.0.2.1 5000 typ host",
		SDPMid:           strPtr("0"),
		SDPMLineIndex:    u16Ptr(0),
		UsernameFragment: strPtr("abcd"),
	}
	id, err := c.AddCandidate(ctx, h, domain.CallerCandidates, want)
	require.NoError(t, err)

	select {
	case ch := <-changes:
		assert.Equal(t, core.ChangeAdded, ch.Type)
		rec, err := ch.Decode()
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, want, rec.Candidate)
	case <-time.After(time.Second):
		t.Fatal("candidate not observed")
	}
}

func TestCandidateDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{`},
		{name: "empty candidate", data: `{"candidate":"","sdpMid":"0"}`},
		{name: "no mid or index", data: `{"candidate":"candidate:1 1 udp 1 192.0.2.1 9 typ host"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CandidateChange{Type: core.ChangeAdded, ID: "x", Data: json.RawMessage(tt.data)}.Decode()
			assert.ErrorIs(t, err, domain.ErrMalformedCandidate)
		})
	}
}

type failingStore struct{ core.DocumentStore }

func (failingStore) Get(context.Context, string) (core.Document, error) {
	return core.Document{}, core.ErrUnavailable
}

func TestStoreUnavailablePropagates(t *testing.T) {
	c := New(failingStore{memstore.New()})
	_, _, err := c.GetRoom(context.Background(), "any")
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestSubscribeRoomDecodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(memstore.New())
	h := c.CreateRoom(ctx)

	updates, err := c.SubscribeRoom(ctx, h)
	require.NoError(t, err)

	first := <-updates
	assert.False(t, first.Exists)

	require.NoError(t, c.SetRoomOffer(ctx, h, offer))
	second := <-updates
	require.NoError(t, second.Err)
	assert.True(t, second.Exists)
	assert.Equal(t, h.ID, second.Room.ID)
	assert.Equal(t, offer, *second.Room.Offer)
}
