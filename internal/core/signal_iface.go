package core

import "github.com/dkeye/P2PCall/internal/domain"

// Frame is a raw payload pushed to a watcher.
type Frame []byte

// Surface is what the session reports back to the user facing side.
type Surface interface {
	RoomCreated(id domain.RoomID)
	RoomNotFound(id domain.RoomID)
	RemoteTrackReceived(track RemoteTrack)
}
