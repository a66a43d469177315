package orch

import (
	"context"
	"errors"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoMediaSource = errors.New("no media source configured")

func (c *Controller) bindMedia(conn core.MediaConnection) {
	conn.OnTrack(func(trackCtx context.Context, track core.RemoteTrack) {
		c.OnTrack(trackCtx, track)
	})
	conn.OnClosed(func() {
		log.Info().Str("module", "orch").Msg("connection closed")
		if s, _ := c.current(); s != nil {
			s.Close()
		}
	})
}

// OnTrack wires a remote track into the remote stream and reports it.
func (c *Controller) OnTrack(ctx context.Context, track core.RemoteTrack) {
	if c.Stream != nil {
		c.Stream.AddTrack(ctx, track)
	}
	c.Surface.RemoteTrackReceived(track)
}

// publishLocalMedia attaches the local tracks. Failures are logged only;
// signaling proceeds without local media.
func (c *Controller) publishLocalMedia(ctx context.Context, conn core.MediaConnection) {
	if c.Source == nil {
		return
	}
	tracks, err := c.Source.Tracks(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("local media unavailable")
	}
	if len(tracks) == 0 {
		return
	}
	if err := conn.SetLocalTracks(tracks); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("attach local media failed")
	}
}

type reloader interface {
	Reload(ctx context.Context) ([]webrtc.TrackLocal, error)
}

// OnLocalMediaDeviceChanged re-acquires local media and replaces the tracks
// of the running connection. Without a session only the media is reloaded.
func (c *Controller) OnLocalMediaDeviceChanged(ctx context.Context) error {
	if c.Source == nil {
		return ErrNoMediaSource
	}
	var (
		tracks []webrtc.TrackLocal
		err    error
	)
	if r, ok := c.Source.(reloader); ok {
		tracks, err = r.Reload(ctx)
	} else {
		tracks, err = c.Source.Tracks(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("local media reload incomplete")
	}

	_, conn := c.current()
	if conn == nil || conn.IsClosed() || len(tracks) == 0 {
		return err
	}
	if setErr := conn.SetLocalTracks(tracks); setErr != nil {
		return errors.Join(err, setErr)
	}
	log.Info().Str("module", "orch").Int("tracks", len(tracks)).Msg("local media replaced")
	return err
}
