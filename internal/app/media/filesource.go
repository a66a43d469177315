package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const (
	oggPageDuration = 20 * time.Millisecond
	streamID        = "p2pcall"
)

var ErrUnsupportedFile = errors.New("unsupported media file")

// FileSource publishes an IVF (VP8) and an Ogg (Opus) file as local tracks,
// paced by file timing and looped at EOF.
type FileSource struct {
	videoFile string
	audioFile string

	mu     sync.Mutex
	tracks []webrtc.TrackLocal
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ core.MediaSource = (*FileSource)(nil)

// NewFileSource builds a source; an empty path disables that kind.
func NewFileSource(videoFile, audioFile string) *FileSource {
	return &FileSource{videoFile: videoFile, audioFile: audioFile}
}

// Tracks returns the playing tracks, opening the files on first use.
// On partial failure the tracks that opened are returned with the error.
func (s *FileSource) Tracks(ctx context.Context) ([]webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracks != nil {
		return s.tracks, nil
	}
	return s.acquire(ctx)
}

// Reload stops playback and re-reads the configured files into fresh tracks.
func (s *FileSource) Reload(ctx context.Context) ([]webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
	return s.acquire(ctx)
}

func (s *FileSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
}

func (s *FileSource) stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	s.tracks = nil
}

func (s *FileSource) acquire(ctx context.Context) ([]webrtc.TrackLocal, error) {
	playCtx, cancel := context.WithCancel(ctx)
	var (
		tracks []webrtc.TrackLocal
		errs   []error
	)

	if s.videoFile != "" {
		t, err := s.startVideo(playCtx)
		if err != nil {
			errs = append(errs, fmt.Errorf("video %s: %w", s.videoFile, err))
		} else {
			tracks = append(tracks, t)
		}
	}
	if s.audioFile != "" {
		t, err := s.startAudio(playCtx)
		if err != nil {
			errs = append(errs, fmt.Errorf("audio %s: %w", s.audioFile, err))
		} else {
			tracks = append(tracks, t)
		}
	}

	s.cancel = cancel
	s.tracks = tracks
	if len(tracks) == 0 {
		s.tracks = nil
	}
	return tracks, errors.Join(errs...)
}

func (s *FileSource) startVideo(ctx context.Context) (webrtc.TrackLocal, error) {
	f, err := os.Open(s.videoFile)
	if err != nil {
		return nil, err
	}
	r, h, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if h.FourCC != "VP80" {
		f.Close()
		return nil, fmt.Errorf("%w: fourcc %q", ErrUnsupportedFile, h.FourCC)
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		f.Close()
		return nil, err
	}

	frame := time.Millisecond * time.Duration((float32(h.TimebaseNumerator)/float32(h.TimebaseDenominator))*1000)
	if frame <= 0 {
		frame = 33 * time.Millisecond
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer f.Close()
		logger := log.With().Str("module", "filesource").Str("file", s.videoFile).Logger()

		ticker := time.NewTicker(frame)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			data, _, err := r.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				if r, err = rewindIVF(f); err != nil {
					logger.Error().Err(err).Msg("rewind failed, stopping video")
					return
				}
				continue
			}
			if err != nil {
				logger.Error().Err(err).Msg("parse frame failed, stopping video")
				return
			}
			if err := track.WriteSample(media.Sample{Data: data, Duration: frame}); err != nil {
				logger.Warn().Err(err).Msg("write sample failed, stopping video")
				return
			}
		}
	}()
	return track, nil
}

func rewindIVF(f *os.File) (*ivfreader.IVFReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, _, err := ivfreader.NewWith(f)
	return r, err
}

func (s *FileSource) startAudio(ctx context.Context) (webrtc.TrackLocal, error) {
	f, err := os.Open(s.audioFile)
	if err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		f.Close()
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer f.Close()
		logger := log.With().Str("module", "filesource").Str("file", s.audioFile).Logger()

		// The granule difference between pages is the number of samples in a page.
		var lastGranule uint64
		ticker := time.NewTicker(oggPageDuration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			page, header, err := r.ParseNextPage()
			if errors.Is(err, io.EOF) {
				if r, err = rewindOgg(f); err != nil {
					logger.Error().Err(err).Msg("rewind failed, stopping audio")
					return
				}
				lastGranule = 0
				continue
			}
			if err != nil {
				logger.Error().Err(err).Msg("parse page failed, stopping audio")
				return
			}
			samples := float64(header.GranulePosition - lastGranule)
			lastGranule = header.GranulePosition
			d := time.Duration((samples/48000)*1000) * time.Millisecond
			if err := track.WriteSample(media.Sample{Data: page, Duration: d}); err != nil {
				logger.Warn().Err(err).Msg("write sample failed, stopping audio")
				return
			}
		}
	}()
	return track, nil
}

func rewindOgg(f *os.File) (*oggreader.OggReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(f)
	return r, err
}
