package media

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// SinkFactory builds a sink for every track added to a RemoteStream.
type SinkFactory interface {
	Name() string
	SinkFor(track TrackSource) (Sink, error)
}

// TrackInfo describes one track of a RemoteStream.
type TrackInfo struct {
	ID       string
	StreamID string
	Kind     string
	MimeType string
	Packets  uint64
	Sinks    int
}

// RemoteStream is the media received from the peer. Every track is read in
// its own loop and its packets fan out to the registered sinks.
type RemoteStream struct {
	mu        sync.RWMutex
	relays    map[string]*trackRelay
	order     []string
	factories []SinkFactory
}

func NewRemoteStream(factories ...SinkFactory) *RemoteStream {
	return &RemoteStream{
		relays:    make(map[string]*trackRelay),
		factories: factories,
	}
}

// AddTrack starts reading a remote track. A track with an id already present
// replaces the old one.
func (s *RemoteStream) AddTrack(ctx context.Context, track TrackSource) {
	logger := log.With().
		Str("module", "media").
		Str("track_id", track.ID()).
		Str("kind", track.Kind().String()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := newTrackRelay(track, cancel, logger)

	for _, f := range s.factories {
		sink, err := f.SinkFor(track)
		if err != nil {
			logger.Warn().Err(err).Str("sink", f.Name()).Msg("sink unavailable for track")
			continue
		}
		if sink == nil {
			continue
		}
		relay.addSink(f.Name(), NewOutSink(sink))
	}

	s.mu.Lock()
	if old, ok := s.relays[track.ID()]; ok {
		logger.Info().Msg("replacing existing track")
		old.cancel()
		old.dropAll()
	} else {
		s.order = append(s.order, track.ID())
	}
	s.relays[track.ID()] = relay
	s.mu.Unlock()

	logger.Info().Str("mime", track.Codec().MimeType).Msg("remote track started")

	go relay.loop(relayCtx)
}

// AddSink attaches a sink to a running track. It reports false when the track
// is unknown or already ended.
func (s *RemoteStream) AddSink(trackID, name string, sink Sink) bool {
	s.mu.RLock()
	relay, ok := s.relays[trackID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case <-relay.done:
		return false
	default:
	}
	relay.addSink(name, NewOutSink(sink))
	return true
}

// Mute pauses or resumes delivery to a sink without detaching it.
func (s *RemoteStream) Mute(trackID, name string, muted bool) bool {
	s.mu.RLock()
	relay, ok := s.relays[trackID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	out, ok := relay.sink(name)
	if !ok {
		return false
	}
	if muted {
		out.MarkMuted()
	} else {
		out.MarkOk()
	}
	return true
}

// RemoveSink marks a sink for deletion; it is dropped on the next packet.
func (s *RemoteStream) RemoveSink(trackID, name string) {
	s.mu.RLock()
	relay, ok := s.relays[trackID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if out, ok := relay.sink(name); ok {
		out.MarkDelete()
	}
}

// Tracks lists the tracks in arrival order.
func (s *RemoteStream) Tracks() []TrackInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrackInfo, 0, len(s.order))
	for _, id := range s.order {
		r := s.relays[id]
		packets, sinks := r.stats()
		out = append(out, TrackInfo{
			ID:       id,
			StreamID: r.Src.StreamID(),
			Kind:     r.Src.Kind().String(),
			MimeType: r.Src.Codec().MimeType,
			Packets:  packets,
			Sinks:    sinks,
		})
	}
	return out
}

// Close stops every track loop and releases the sinks. A loop blocked in a
// read exits once the underlying connection is closed.
func (s *RemoteStream) Close() {
	s.mu.Lock()
	relays := make([]*trackRelay, 0, len(s.relays))
	for _, r := range s.relays {
		relays = append(relays, r)
	}
	s.mu.Unlock()

	for _, r := range relays {
		r.cancel()
		r.dropAll()
	}
}
