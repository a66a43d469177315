package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/P2PCall/internal/adapters/cli"
	"github.com/dkeye/P2PCall/internal/adapters/rtc"
	"github.com/dkeye/P2PCall/internal/app/media"
	"github.com/dkeye/P2PCall/internal/app/orch"
	"github.com/dkeye/P2PCall/internal/app/relaystore"
	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/dkeye/P2PCall/internal/store/remote"
)

type peer struct {
	ctrl    *orch.Controller
	surface *cli.Surface
}

func newPeer() (*peer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(cfg.Level())

	store, err := remote.New(cfg.StoreURL)
	if err != nil {
		return nil, err
	}
	api, err := rtc.NewAPI()
	if err != nil {
		return nil, err
	}
	settings := rtc.Settings{
		ICEServers:           cfg.ICEServers,
		ICECandidatePoolSize: cfg.ICECandidatePoolSize,
	}

	var factories []media.SinkFactory
	if cfg.RecordDir != "" {
		rec, err := media.NewRecorder(cfg.RecordDir)
		if err != nil {
			return nil, err
		}
		factories = append(factories, rec)
	}

	surface := cli.NewSurface(os.Stdout)
	ctrl := &orch.Controller{
		Rooms: relaystore.New(store),
		Connect: func(name string) (core.MediaConnection, error) {
			return rtc.NewWebRTCConnection(api, settings.Configuration(), name)
		},
		Stream:  media.NewRemoteStream(factories...),
		Surface: surface,
	}
	if cfg.VideoFile != "" || cfg.AudioFile != "" {
		ctrl.Source = media.NewFileSource(cfg.VideoFile, cfg.AudioFile)
	}
	log.Debug().Str("module", "peer").Str("store", cfg.StoreURL).Str("record_dir", cfg.RecordDir).Msg("peer ready")
	return &peer{ctrl: ctrl, surface: surface}, nil
}

func (p *peer) Close() { p.ctrl.Close() }

// wait blocks until the session ends or ctx is cancelled.
// SIGHUP re-reads the local media files.
func (p *peer) wait(ctx context.Context, id domain.RoomID) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	stable := p.ctrl.Stable()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.ctrl.Done():
			p.surface.Warn("call ended")
			return nil
		case <-stable:
			stable = nil
			p.surface.Connected(id)
		case <-hup:
			if err := p.ctrl.OnLocalMediaDeviceChanged(ctx); err != nil {
				p.surface.Warn("media reload: " + err.Error())
			}
		}
	}
}
