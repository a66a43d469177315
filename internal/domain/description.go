// Package domain contains entities without logic, just signaling data.
package domain

import (
	"errors"
	"fmt"
)

const (
	SDPTypeOffer  = "offer"
	SDPTypeAnswer = "answer"
)

var (
	ErrMalformedDescription = errors.New("malformed session description")
	ErrMalformedCandidate   = errors.New("malformed candidate")
)

// SessionDescription mirrors the {type, sdp} pair stored in the room document.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Validate checks that d is an offer or answer carrying a payload.
func (d SessionDescription) Validate() error {
	switch d.Type {
	case SDPTypeOffer, SDPTypeAnswer:
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrMalformedDescription, d.Type)
	}
	if d.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrMalformedDescription)
	}
	return nil
}

// Candidate is the serialized form of a transport candidate.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex"`
	UsernameFragment *string `json:"usernameFragment"`
}

func (c Candidate) Validate() error {
	if c.Candidate == "" {
		return fmt.Errorf("%w: empty candidate", ErrMalformedCandidate)
	}
	if c.SDPMid == nil && c.SDPMLineIndex == nil {
		return fmt.Errorf("%w: neither sdpMid nor sdpMLineIndex set", ErrMalformedCandidate)
	}
	return nil
}
