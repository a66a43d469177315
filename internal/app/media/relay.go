package media

import (
	"context"
	"io"
	"maps"
	"sync"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type TrackSource = core.RemoteTrack

type trackRelay struct {
	Src TrackSource

	mu    sync.RWMutex
	sinks map[string]*OutSink

	packets uint64
	logger  zerolog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

func newTrackRelay(src TrackSource, cancel context.CancelFunc, logger zerolog.Logger) *trackRelay {
	return &trackRelay{
		Src:    src,
		sinks:  make(map[string]*OutSink),
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// loop reads RTP packets from the source track and forwards them to all sinks.
func (r *trackRelay) loop(ctx context.Context) {
	defer close(r.done)
	logger := &r.logger
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("track ctx done, dropping all sinks")
			r.dropAll()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			if err == io.EOF {
				logger.Info().Msg("remote track ended")
			} else {
				logger.Error().Err(err).Msg("read RTP error, stopping")
			}
			r.dropAll()
			return
		}
		r.mu.Lock()
		r.packets++
		r.mu.Unlock()
		r.forward(pkt)
	}
}

func (r *trackRelay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for name, s := range snapshot {
		switch s.GetState() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateMuted:
		case SinkStateOk:
			if err := s.Sink.WriteRTP(pkt); err != nil {
				r.logger.Error().
					Err(err).
					Str("sink", name).
					Msg("sink write error, marking sink as delete")
				s.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *trackRelay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	removed := make([]*OutSink, 0, len(dirty))
	for _, name := range dirty {
		if s, ok := r.sinks[name]; ok {
			removed = append(removed, s)
			delete(r.sinks, name)
		}
	}
	r.mu.Unlock()
	for _, s := range removed {
		closeSink(s.Sink, &r.logger)
	}
}

func (r *trackRelay) dropAll() {
	r.mu.Lock()
	for _, s := range r.sinks {
		s.MarkDelete()
	}
	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	r.mu.Unlock()
	r.cleanupDeleted(names)
}

func (r *trackRelay) addSink(name string, s *OutSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = s
}

func (r *trackRelay) sink(name string) (*OutSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	return s, ok
}

func (r *trackRelay) stats() (packets uint64, sinks int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.packets, len(r.sinks)
}

func closeSink(s Sink, logger *zerolog.Logger) {
	c, ok := s.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Msg("sink close error")
	}
}
