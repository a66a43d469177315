package domain

import "errors"

type RoomID string

// Sub-collections of a room document holding each side's candidates.
const (
	CallerCandidates = "callerCandidates"
	CalleeCandidates = "calleeCandidates"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrAlreadyAnswered  = errors.New("room already answered")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrMalformedRoom    = errors.New("malformed room")
)

// Room is the signaling record shared by both peers.
// Offer is written once by the caller, Answer once by the callee.
type Room struct {
	ID     RoomID              `json:"-"`
	Offer  *SessionDescription `json:"offer,omitempty"`
	Answer *SessionDescription `json:"answer,omitempty"`
}
