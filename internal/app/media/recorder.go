package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// Recorder writes received tracks to disk: VP8 as IVF, Opus as Ogg.
type Recorder struct {
	dir string
	seq atomic.Uint32
}

var _ SinkFactory = (*Recorder)(nil)

func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

func (r *Recorder) Name() string { return "recorder" }

// SinkFor opens a file writer for the track codec. Codecs without a
// container return a nil sink.
func (r *Recorder) SinkFor(track TrackSource) (Sink, error) {
	mime := track.Codec().MimeType
	n := r.seq.Add(1)
	base := fmt.Sprintf("%s-%d-%s", track.Kind(), n, sanitize(track.ID()))

	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		name := filepath.Join(r.dir, base+".ivf")
		w, err := ivfwriter.New(name)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "recorder").Str("file", name).Msg("recording video")
		return w, nil
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		name := filepath.Join(r.dir, base+".ogg")
		rate, channels := track.Codec().ClockRate, track.Codec().Channels
		if rate == 0 {
			rate = 48000
		}
		if channels == 0 {
			channels = 2
		}
		w, err := oggwriter.New(name, rate, channels)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "recorder").Str("file", name).Msg("recording audio")
		return w, nil
	default:
		log.Warn().Str("module", "recorder").Str("mime", mime).Msg("no container for codec, not recording")
		return nil, nil
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
