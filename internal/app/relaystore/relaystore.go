// Package relaystore is the typed view of one room document and its two
// candidate sub-collections on top of a core.DocumentStore.
package relaystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const roomsCollection = "rooms"

// RoomHandle addresses one room document.
type RoomHandle struct {
	ID domain.RoomID
}

func (h RoomHandle) Path() string { return roomsCollection + "/" + string(h.ID) }

func (h RoomHandle) CollectionPath(name string) string { return h.Path() + "/" + name }

// CandidateRecord is one decoded entry of a candidate sub-collection.
type CandidateRecord struct {
	ID        string
	Candidate domain.Candidate
}

// CandidateChange is a raw sub-collection notification. Decoding is left to the
// consumer so a single bad record can be dropped without ending the stream.
type CandidateChange struct {
	Type core.ChangeType
	ID   string
	Data json.RawMessage
}

// Decode turns a change payload into a candidate.
func (c CandidateChange) Decode() (CandidateRecord, error) {
	var cand domain.Candidate
	if err := json.Unmarshal(c.Data, &cand); err != nil {
		return CandidateRecord{}, fmt.Errorf("%w: %v", domain.ErrMalformedCandidate, err)
	}
	if err := cand.Validate(); err != nil {
		return CandidateRecord{}, err
	}
	return CandidateRecord{ID: c.ID, Candidate: cand}, nil
}

// Client never retries; every failure is returned to the caller.
type Client struct {
	store core.DocumentStore
}

func New(store core.DocumentStore) *Client {
	return &Client{store: store}
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrRoomNotFound)
	case errors.Is(err, core.ErrUnavailable):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// CreateRoom allocates a new room id. Nothing is written until SetRoomOffer.
func (c *Client) CreateRoom(_ context.Context) RoomHandle {
	return RoomHandle{ID: domain.RoomID(uuid.NewString())}
}

// GetRoom fetches a room. A room that exists without an offer is ErrMalformedRoom.
func (c *Client) GetRoom(ctx context.Context, id domain.RoomID) (RoomHandle, domain.Room, error) {
	h := RoomHandle{ID: id}
	if id == "" {
		return h, domain.Room{}, fmt.Errorf("get room: %w", domain.ErrRoomNotFound)
	}
	doc, err := c.store.Get(ctx, h.Path())
	if err != nil {
		return h, domain.Room{}, mapErr("get room", err)
	}
	room, err := decodeRoom(id, doc.Data)
	if err != nil {
		return h, domain.Room{}, err
	}
	if room.Offer == nil {
		return h, room, fmt.Errorf("%w: room %s has no offer", domain.ErrMalformedRoom, id)
	}
	if err := room.Offer.Validate(); err != nil {
		return h, room, fmt.Errorf("%w: %v", domain.ErrMalformedRoom, err)
	}
	return h, room, nil
}

func decodeRoom(id domain.RoomID, data json.RawMessage) (domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", domain.ErrMalformedRoom, err)
	}
	room.ID = id
	return room, nil
}

// SetRoomOffer creates the room document holding the offer. It fails if the
// room was already written, so a room carries at most one offer.
func (c *Client) SetRoomOffer(ctx context.Context, h RoomHandle, offer domain.SessionDescription) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(domain.Room{Offer: &offer})
	if err != nil {
		return err
	}
	if err := c.store.Create(ctx, h.Path(), data); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			return fmt.Errorf("set room offer: room %s already has an offer", h.ID)
		}
		return mapErr("set room offer", err)
	}
	log.Debug().Str("module", "relaystore").Str("room", string(h.ID)).Msg("offer stored")
	return nil
}

// SetRoomAnswer adds the answer to an existing room, only if none is present.
func (c *Client) SetRoomAnswer(ctx context.Context, h RoomHandle, answer domain.SessionDescription) error {
	if err := answer.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	err = c.store.Update(ctx, h.Path(), map[string]json.RawMessage{"answer": data}, "answer")
	if errors.Is(err, core.ErrConflict) {
		return fmt.Errorf("set room answer: %w", domain.ErrAlreadyAnswered)
	}
	if err != nil {
		return mapErr("set room answer", err)
	}
	log.Debug().Str("module", "relaystore").Str("room", string(h.ID)).Msg("answer stored")
	return nil
}

// RoomUpdate is a decoded room notification; Err is set when the snapshot
// could not be decoded.
type RoomUpdate struct {
	Exists bool
	Room   domain.Room
	Err    error
}

// SubscribeRoom streams room snapshots until ctx is done.
func (c *Client) SubscribeRoom(ctx context.Context, h RoomHandle) (<-chan RoomUpdate, error) {
	snaps, err := c.store.WatchDocument(ctx, h.Path())
	if err != nil {
		return nil, mapErr("subscribe room", err)
	}
	out := make(chan RoomUpdate)
	go func() {
		defer close(out)
		for snap := range snaps {
			u := RoomUpdate{Exists: snap.Exists}
			if snap.Exists {
				u.Room, u.Err = decodeRoom(h.ID, snap.Document.Data)
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// AddCandidate appends a local candidate to the named sub-collection.
func (c *Client) AddCandidate(ctx context.Context, h RoomHandle, collection string, cand domain.Candidate) (string, error) {
	data, err := json.Marshal(cand)
	if err != nil {
		return "", err
	}
	id, err := c.store.Add(ctx, h.CollectionPath(collection), data)
	if err != nil {
		return "", mapErr("add candidate", err)
	}
	return id, nil
}

// SubscribeCandidates streams raw changes of the named sub-collection until ctx is done.
func (c *Client) SubscribeCandidates(ctx context.Context, h RoomHandle, collection string) (<-chan CandidateChange, error) {
	changes, err := c.store.WatchCollection(ctx, h.CollectionPath(collection))
	if err != nil {
		return nil, mapErr("subscribe candidates", err)
	}
	out := make(chan CandidateChange)
	go func() {
		defer close(out)
		for ch := range changes {
			select {
			case out <- CandidateChange{Type: ch.Type, ID: ch.Document.ID, Data: ch.Document.Data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
