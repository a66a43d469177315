// Package cli renders session events on a terminal.
package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
)

// Surface prints what the session reports. Writes are serialized.
type Surface struct {
	mu  sync.Mutex
	out io.Writer
}

var _ core.Surface = (*Surface)(nil)

func NewSurface(out io.Writer) *Surface {
	return &Surface{out: out}
}

func (s *Surface) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *Surface) RoomCreated(id domain.RoomID) {
	box := RoomBoxStyle.Render(TitleStyle.Render(string(id)))
	s.printf("%s %s\n%s\n%s\n", IconRoom, SuccessStyle.Render("Room created"), box,
		MutedStyle.Render("Share the id, the other side runs: peer join "+string(id)))
}

func (s *Surface) RoomNotFound(id domain.RoomID) {
	s.printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(fmt.Sprintf("Room %s does not exist.", id)))
}

func (s *Surface) RemoteTrackReceived(track core.RemoteTrack) {
	s.printf("%s %s %s\n", IconTrack, SuccessStyle.Render("Receiving "+track.Kind().String()),
		MutedStyle.Render(fmt.Sprintf("(%s, stream %s)", track.Codec().MimeType, track.StreamID())))
}

// Connected reports that the signaling exchange completed.
func (s *Surface) Connected(id domain.RoomID) {
	s.printf("%s %s\n", IconSuccess, SuccessStyle.Render("Negotiated room "+string(id)))
}

func (s *Surface) Warn(msg string) {
	s.printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func (s *Surface) Error(err error) {
	s.printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(err.Error()))
}
