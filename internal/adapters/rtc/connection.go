package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("connection closed")

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	name   string
	cancel context.CancelFunc
	closed atomic.Bool

	mu       sync.Mutex
	onICE    func(*domain.Candidate)
	onTrack  func(ctx context.Context, track core.RemoteTrack)
	onClosed func()
	senders  map[webrtc.RTPCodecType]*webrtc.RTPSender
}

var _ core.MediaConnection = (*WebRTCConnection)(nil)

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, name string) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{
		pc:      pc,
		name:    name,
		senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
	}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", c.name).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		log.Debug().Str("module", "webrtc").Str("peer", c.name).Str("signaling_state", s.String()).Msg("Signaling state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", c.name).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
			c.fireClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn == nil {
			return
		}
		if cand == nil {
			fn(nil)
			return
		}
		dc := CandidateFromPion(cand.ToJSON())
		fn(&dc)
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", c.name).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(ctx, track)
		}
	})

	return nil
}

func (c *WebRTCConnection) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	if err := c.usable(ctx); err != nil {
		return domain.SessionDescription{}, err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return DescriptionFromPion(offer), nil
}

func (c *WebRTCConnection) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	if err := c.usable(ctx); err != nil {
		return domain.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return DescriptionFromPion(answer), nil
}

func (c *WebRTCConnection) SetLocalDescription(ctx context.Context, desc domain.SessionDescription) error {
	if err := c.usable(ctx); err != nil {
		return err
	}
	sd, err := DescriptionToPion(desc)
	if err != nil {
		return err
	}
	return c.pc.SetLocalDescription(sd)
}

func (c *WebRTCConnection) SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	if err := c.usable(ctx); err != nil {
		return err
	}
	sd, err := DescriptionToPion(desc)
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) AddICECandidate(cand domain.Candidate) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.pc.AddICECandidate(CandidateToPion(cand))
}

func (c *WebRTCConnection) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// SetLocalTracks swaps the track of an existing sender of the same kind and adds
// a sender for every new kind. Once a local description exists new kinds are
// skipped, since sending them would need another offer/answer round.
func (c *WebRTCConnection) SetLocalTracks(tracks []webrtc.TrackLocal) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	negotiated := c.pc.LocalDescription() != nil
	for _, t := range tracks {
		if sender, ok := c.senders[t.Kind()]; ok {
			if err := sender.ReplaceTrack(t); err != nil {
				return fmt.Errorf("replace %s track: %w", t.Kind(), err)
			}
			log.Info().Str("module", "webrtc").Str("peer", c.name).Str("kind", t.Kind().String()).Msg("local track replaced")
			continue
		}
		if negotiated {
			log.Warn().Str("module", "webrtc").Str("peer", c.name).Str("kind", t.Kind().String()).Msg("new track kind after negotiation skipped")
			continue
		}
		sender, err := c.pc.AddTrack(t)
		if err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		c.senders[t.Kind()] = sender
		go drainRTCP(sender)
		log.Info().Str("module", "webrtc").Str("peer", c.name).Str("kind", t.Kind().String()).Msg("local track added")
	}
	return nil
}

// drainRTCP keeps interceptors (NACK, reports) running for a sender.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", c.name).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("peer", c.name).Msg("closed")
	}
	c.fireClosed()
}

func (c *WebRTCConnection) IsClosed() bool { return c.closed.Load() }

func (c *WebRTCConnection) fireClosed() {
	c.mu.Lock()
	fn := c.onClosed
	c.onClosed = nil
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *WebRTCConnection) OnICECandidate(fn func(*domain.Candidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(ctx context.Context, track core.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

// OnClosed sets application-level callback for cleanup tracks
func (c *WebRTCConnection) OnClosed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}

// SignalingState exposes the pion negotiation state, mostly for diagnostics.
func (c *WebRTCConnection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}
