package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dkeye/P2PCall/internal/adapters/cli"
	"github.com/dkeye/P2PCall/internal/config"
	"github.com/dkeye/P2PCall/internal/domain"
)

var (
	flagStore     string
	flagVideo     string
	flagAudio     string
	flagRecordDir string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "peer",
	Short: "Start or join a peer-to-peer call through a signaling relay",
	Long: `peer negotiates a WebRTC call with another peer. The caller creates a
room on the relay and shares its id; the callee joins it. Offer, answer and
ICE candidates travel through the relay, media flows directly.`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagStore, "store", "", "relay base URL (overrides store_url)")
	pf.StringVar(&flagVideo, "video", "", "IVF (VP8) file to send as video")
	pf.StringVar(&flagAudio, "audio", "", "Ogg (Opus) file to send as audio")
	pf.StringVar(&flagRecordDir, "record-dir", "", "directory to record remote tracks into")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (overrides log_level)")

	rootCmd.AddCommand(createCmd, joinCmd)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagStore != "" {
		cfg.StoreURL = flagStore
	}
	if flagVideo != "" {
		cfg.VideoFile = flagVideo
	}
	if flagAudio != "" {
		cfg.AudioFile = flagAudio
	}
	if flagRecordDir != "" {
		cfg.RecordDir = flagRecordDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// RoomNotFound has already been shown by the surface.
		if !errors.Is(err, domain.ErrRoomNotFound) {
			cli.NewSurface(os.Stderr).Error(err)
		}
		os.Exit(1)
	}
}
