package negotiation

import (
	"context"

	"github.com/dkeye/P2PCall/internal/app/relaystore"
	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
)

// Relay pumps candidates between the connection and the room's sub-collections.
// Attach only forwards notifications into the session loop; every other method
// must be called from that loop.
type Relay struct {
	store  *relaystore.Client
	conn   core.MediaConnection
	room   relaystore.RoomHandle
	local  string
	remote string
	logger zerolog.Logger

	seen        map[string]struct{}
	pending     deque.Deque[relaystore.CandidateRecord]
	remoteReady bool

	published int
	applied   int
}

func NewRelay(
	store *relaystore.Client,
	conn core.MediaConnection,
	room relaystore.RoomHandle,
	local, remote string,
	logger zerolog.Logger,
) *Relay {
	return &Relay{
		store:  store,
		conn:   conn,
		room:   room,
		local:  local,
		remote: remote,
		logger: logger.With().Str("local", local).Str("remote", remote).Logger(),
		seen:   make(map[string]struct{}),
	}
}

// Attach registers the local candidate listener and subscribes to the remote
// sub-collection. Both streams are handed to sink in arrival order.
func (r *Relay) Attach(ctx context.Context, sink func(event)) error {
	r.conn.OnICECandidate(func(c *domain.Candidate) {
		sink(event{kind: eventLocalCandidate, local: c})
	})

	changes, err := r.store.SubscribeCandidates(ctx, r.room, r.remote)
	if err != nil {
		return err
	}
	go func() {
		for ch := range changes {
			sink(event{kind: eventRemoteCandidate, remote: ch})
		}
		r.logger.Debug().Msg("remote candidate feed closed")
		if ctx.Err() == nil {
			sink(event{kind: eventFeedClosed, feed: "candidate"})
		}
	}()
	return nil
}

// publish appends a local candidate to the store. The end-of-candidates
// marker is never transmitted.
func (r *Relay) publish(ctx context.Context, c *domain.Candidate) error {
	if c == nil {
		r.logger.Debug().Int("published", r.published).Msg("local gathering complete")
		return nil
	}
	if _, err := r.store.AddCandidate(ctx, r.room, r.local, *c); err != nil {
		return err
	}
	r.published++
	return nil
}

// apply handles one remote notification. Only added records are used, each
// record id at most once; candidates that arrive before the remote
// description are held until RemoteReady.
func (r *Relay) apply(ch relaystore.CandidateChange) {
	if ch.Type != core.ChangeAdded {
		return
	}
	if _, dup := r.seen[ch.ID]; dup {
		return
	}
	r.seen[ch.ID] = struct{}{}

	rec, err := ch.Decode()
	if err != nil {
		r.logger.Warn().Err(err).Str("record", ch.ID).Msg("dropping malformed candidate")
		return
	}
	if !r.remoteReady {
		r.pending.PushBack(rec)
		r.logger.Debug().Str("record", rec.ID).Int("pending", r.pending.Len()).Msg("candidate queued")
		return
	}
	r.add(rec)
}

func (r *Relay) add(rec relaystore.CandidateRecord) {
	if err := r.conn.AddICECandidate(rec.Candidate); err != nil {
		r.logger.Warn().Err(err).Str("record", rec.ID).Msg("add ice candidate")
		return
	}
	r.applied++
}

// RemoteReady replays queued candidates; later ones are applied directly.
func (r *Relay) RemoteReady() {
	if r.remoteReady {
		return
	}
	r.remoteReady = true
	n := r.pending.Len()
	for r.pending.Len() > 0 {
		r.add(r.pending.PopFront())
	}
	if n > 0 {
		r.logger.Debug().Int("replayed", n).Msg("pending candidates replayed")
	}
}

// Pending is the number of candidates waiting for the remote description.
func (r *Relay) Pending() int { return r.pending.Len() }
