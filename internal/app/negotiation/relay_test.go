package negotiation

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/dkeye/P2PCall/internal/app/relaystore"
	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/dkeye/P2PCall/internal/store/memstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T, conn *fakeConn) (*Relay, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	room := relaystore.RoomHandle{ID: "room"}
	r := NewRelay(relaystore.New(store), conn, room, domain.CallerCandidates, domain.CalleeCandidates, zerolog.Nop())
	return r, store
}

func change(t *testing.T, id string, c domain.Candidate) relaystore.CandidateChange {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	return relaystore.CandidateChange{Type: core.ChangeAdded, ID: id, Data: data}
}

func remoteSet(conn *fakeConn) {
	_ = conn.SetRemoteDescription(context.Background(), domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0"})
}

func TestRelayDedupesByRecordID(t *testing.T) {
	conn := newFakeConn("c")
	remoteSet(conn)
	r, _ := newTestRelay(t, conn)
	r.RemoteReady()

	ch := change(t, "rec-1", candidate("1"))
	r.apply(ch)
	r.apply(ch)

	_, _, _, cands := conn.snapshot()
	assert.Len(t, cands, 1)
}

func TestRelayIgnoresNonAddedChanges(t *testing.T) {
	conn := newFakeConn("c")
	remoteSet(conn)
	r, _ := newTestRelay(t, conn)
	r.RemoteReady()

	for _, typ := range []core.ChangeType{core.ChangeModified, core.ChangeRemoved} {
		ch := change(t, "rec-"+string(typ), candidate(string(typ)))
		ch.Type = typ
		r.apply(ch)
	}
	_, _, _, cands := conn.snapshot()
	assert.Empty(t, cands)
}

func TestRelayQueuesUntilRemoteReady(t *testing.T) {
	conn := newFakeConn("c")
	r, _ := newTestRelay(t, conn)

	r.apply(change(t, "a", candidate("a")))
	r.apply(change(t, "b", candidate("b")))
	assert.Equal(t, 2, r.Pending())

	remoteSet(conn)
	r.RemoteReady()
	assert.Zero(t, r.Pending())

	r.apply(change(t, "c", candidate("c")))
	_, _, _, cands := conn.snapshot()
	assert.Len(t, cands, 3)
}

func TestRelayOrderIndependent(t *testing.T) {
	names := []string{"a", "b", "c"}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	var want []string
	for i, p := range perms {
		conn := newFakeConn("c")
		remoteSet(conn)
		r, _ := newTestRelay(t, conn)
		r.RemoteReady()
		for _, idx := range p {
			r.apply(change(t, names[idx], candidate(names[idx])))
		}
		_, _, _, cands := conn.snapshot()
		got := make([]string, 0, len(cands))
		for _, c := range cands {
			got = append(got, c.Candidate)
		}
		sort.Strings(got)
		if i == 0 {
			want = got
			continue
		}
		assert.Equal(t, want, got, "permutation %v", p)
	}
}

func TestRelayPublishSkipsEndOfCandidates(t *testing.T) {
	conn := newFakeConn("c")
	r, store := newTestRelay(t, conn)
	ctx := context.Background()

	require.NoError(t, r.publish(ctx, nil))
	c := candidate("local")
	require.NoError(t, r.publish(ctx, &c))

	recs := store.Records("rooms/room/" + domain.CallerCandidates)
	require.Len(t, recs, 1)
	var got domain.Candidate
	require.NoError(t, json.Unmarshal(recs[0].Data, &got))
	assert.Equal(t, c, got)
}
