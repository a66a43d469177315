package core

import (
	"context"

	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is the transport primitive owned by one negotiation session.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool

	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(ctx context.Context, desc domain.SessionDescription) error
	SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error
	// AddICECandidate applies a remote candidate.
	AddICECandidate(domain.Candidate) error

	// OnICECandidate sets a callback for newly gathered local candidates.
	// A nil candidate marks the end of gathering.
	OnICECandidate(func(*domain.Candidate))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track RemoteTrack))
	// SetLocalTracks replaces local tracks of the same kind and adds the rest.
	SetLocalTracks(tracks []webrtc.TrackLocal) error
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}

// MediaSource supplies the local tracks published on a connection.
type MediaSource interface {
	Tracks(ctx context.Context) ([]webrtc.TrackLocal, error)
}

// RemoteTrack is the read side of a track sent by the peer. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}
