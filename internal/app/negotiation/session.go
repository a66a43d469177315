// Package negotiation drives one connection through the offer/answer exchange
// over the relay store.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/P2PCall/internal/app/relaystore"
	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/dkeye/P2PCall/internal/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrWrongRole      = errors.New("operation not allowed for this role")
	ErrSessionStarted = errors.New("session already started")
)

type State int32

const (
	StateIdle State = iota
	StateDescriptionExchanged
	StateStable
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDescriptionExchanged:
		return "description-exchanged"
	case StateStable:
		return "stable"
	default:
		return "unknown"
	}
}

type eventKind int

const (
	eventLocalCandidate eventKind = iota
	eventRemoteCandidate
	eventRoomUpdate
	eventFeedClosed
)

type event struct {
	kind   eventKind
	local  *domain.Candidate
	remote relaystore.CandidateChange
	room   relaystore.RoomUpdate
	feed   string
}

// Session owns one connection for one room. The role sequence runs first; after
// it returns, every notification is handled by a single loop goroutine, so the
// connection descriptions are never assigned concurrently.
type Session struct {
	role  domain.Role
	conn  core.MediaConnection
	store *relaystore.Client

	state   atomic.Int32
	started atomic.Bool

	room   relaystore.RoomHandle
	roomID atomic.Value
	onRoom func(context.Context)
	relay  *Relay
	events *queue.Unbounded[event]
	logger zerolog.Logger

	cancel     context.CancelFunc
	stable     chan struct{}
	stableOnce sync.Once
	done       chan struct{}

	errMu sync.Mutex
	err   error
}

func NewSession(role domain.Role, conn core.MediaConnection, store *relaystore.Client) *Session {
	return &Session{
		role:   role,
		conn:   conn,
		store:  store,
		logger: log.With().Str("module", "negotiation").Str("role", role.String()).Logger(),
		stable: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *Session) Role() domain.Role { return s.role }

func (s *Session) State() State { return State(s.state.Load()) }

// RoomID is empty until the room is allocated or fetched.
func (s *Session) RoomID() domain.RoomID {
	id, _ := s.roomID.Load().(domain.RoomID)
	return id
}

// Stable is closed once both descriptions are assigned.
func (s *Session) Stable() <-chan struct{} { return s.stable }

// Done is closed when the session loop exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the failure that halted the session, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// OnRoomResolved sets a hook run once the room is known and before anything is
// attached to the connection. It does not run when the room cannot be joined.
func (s *Session) OnRoomResolved(fn func(context.Context)) { s.onRoom = fn }

func (s *Session) roomResolved(ctx context.Context) {
	if s.onRoom != nil {
		s.onRoom(ctx)
	}
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Info().Str("from", prev.String()).Str("to", st.String()).Msg("state")
	}
	if st == StateStable {
		s.stableOnce.Do(func() { close(s.stable) })
	}
}

func (s *Session) begin(ctx context.Context, role domain.Role) (context.Context, error) {
	if s.role != role {
		return nil, fmt.Errorf("%w: %s", ErrWrongRole, s.role)
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrSessionStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.events = queue.NewUnbounded[event](ctx)
	return ctx, nil
}

// abort releases what the sequence set up. When reusable is true nothing was
// wired yet and the session may be started again.
func (s *Session) abort(err error, reusable bool) error {
	s.cancel()
	if reusable {
		s.started.Store(false)
		return err
	}
	s.fail(err)
	close(s.done)
	return err
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.logger.Error().Err(err).Str("state", s.State().String()).Msg("session halted")
}

func (s *Session) post(ev event) {
	s.events.Push(ev)
}

func (s *Session) attachRelay(ctx context.Context) error {
	s.relay = NewRelay(s.store, s.conn, s.room, s.role.LocalCollection(), s.role.RemoteCollection(), s.logger)
	return s.relay.Attach(ctx, s.post)
}

// Offer runs the caller sequence: allocate the room, attach the relay, publish
// the offer and watch the room for the answer. It returns once the offer is
// stored; the answer is applied asynchronously.
func (s *Session) Offer(ctx context.Context) (domain.RoomID, error) {
	ctx, err := s.begin(ctx, domain.RoleCaller)
	if err != nil {
		return "", err
	}

	s.room = s.store.CreateRoom(ctx)
	s.roomID.Store(s.room.ID)
	s.logger = s.logger.With().Str("room", string(s.room.ID)).Logger()
	s.roomResolved(ctx)

	if err := s.attachRelay(ctx); err != nil {
		return "", s.abort(err, false)
	}
	offer, err := s.conn.CreateOffer(ctx)
	if err != nil {
		return "", s.abort(fmt.Errorf("create offer: %w", err), false)
	}
	if err := s.conn.SetLocalDescription(ctx, offer); err != nil {
		return "", s.abort(fmt.Errorf("set local description: %w", err), false)
	}
	if err := s.store.SetRoomOffer(ctx, s.room, offer); err != nil {
		return "", s.abort(err, false)
	}
	s.setState(StateDescriptionExchanged)

	updates, err := s.store.SubscribeRoom(ctx, s.room)
	if err != nil {
		return "", s.abort(err, false)
	}
	go func() {
		for u := range updates {
			s.post(event{kind: eventRoomUpdate, room: u})
		}
		if ctx.Err() == nil {
			s.post(event{kind: eventFeedClosed, feed: "room"})
		}
	}()

	go s.loop(ctx)
	return s.room.ID, nil
}

// Answer runs the callee sequence against an existing room. A missing or
// malformed room aborts before anything is attached or written.
func (s *Session) Answer(ctx context.Context, id domain.RoomID) error {
	ctx, err := s.begin(ctx, domain.RoleCallee)
	if err != nil {
		return err
	}

	h, room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		reusable := errors.Is(err, domain.ErrRoomNotFound) || errors.Is(err, domain.ErrMalformedRoom)
		return s.abort(err, reusable)
	}
	s.room = h
	s.roomID.Store(h.ID)
	s.logger = s.logger.With().Str("room", string(h.ID)).Logger()
	s.roomResolved(ctx)

	if err := s.attachRelay(ctx); err != nil {
		return s.abort(err, false)
	}
	if err := s.conn.SetRemoteDescription(ctx, *room.Offer); err != nil {
		return s.abort(fmt.Errorf("set remote description: %w", err), false)
	}
	s.setState(StateDescriptionExchanged)
	s.relay.RemoteReady()

	answer, err := s.conn.CreateAnswer(ctx)
	if err != nil {
		return s.abort(fmt.Errorf("create answer: %w", err), false)
	}
	if err := s.conn.SetLocalDescription(ctx, answer); err != nil {
		return s.abort(fmt.Errorf("set local description: %w", err), false)
	}
	if err := s.store.SetRoomAnswer(ctx, h, answer); err != nil {
		return s.abort(err, false)
	}
	s.setState(StateStable)

	go s.loop(ctx)
	return nil
}

// Close stops the loop and every subscription. The connection is left to its owner.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	s.logger.Debug().Msg("session loop started")
	for ev := range s.events.Out() {
		switch ev.kind {
		case eventLocalCandidate:
			if err := s.relay.publish(ctx, ev.local); err != nil {
				s.logger.Error().Err(err).Msg("publish local candidate")
			}
		case eventRemoteCandidate:
			s.relay.apply(ev.remote)
		case eventRoomUpdate:
			if err := s.onRoomUpdate(ctx, ev.room); err != nil {
				s.fail(err)
				s.cancel()
			}
		case eventFeedClosed:
			if s.State() == StateStable {
				s.logger.Warn().Str("feed", ev.feed).Msg("store feed closed after negotiation")
				continue
			}
			s.fail(fmt.Errorf("%s feed closed: %w", ev.feed, domain.ErrStoreUnavailable))
			s.cancel()
		}
	}
	s.logger.Debug().Msg("session loop stopped")
}

// onRoomUpdate assigns the answer as remote description exactly once.
func (s *Session) onRoomUpdate(ctx context.Context, u relaystore.RoomUpdate) error {
	if s.State() == StateStable {
		return nil
	}
	if u.Err != nil {
		s.logger.Warn().Err(u.Err).Msg("ignoring undecodable room snapshot")
		return nil
	}
	if !u.Exists || u.Room.Answer == nil {
		return nil
	}
	answer := *u.Room.Answer
	if err := answer.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("ignoring malformed answer")
		return nil
	}
	if answer.Type != domain.SDPTypeAnswer {
		s.logger.Warn().Str("type", answer.Type).Msg("ignoring answer field with wrong type")
		return nil
	}
	if err := s.conn.SetRemoteDescription(ctx, answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.setState(StateStable)
	s.relay.RemoteReady()
	return nil
}
