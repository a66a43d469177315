// Package orch exposes the two user triggered operations, create and join,
// and wires one negotiation session, its connection and its media together.
package orch

import (
	"errors"
	"sync"

	"github.com/dkeye/P2PCall/internal/app/media"
	"github.com/dkeye/P2PCall/internal/app/negotiation"
	"github.com/dkeye/P2PCall/internal/app/relaystore"
	"github.com/dkeye/P2PCall/internal/core"
)

var ErrSessionActive = errors.New("a room session is already active")

// ConnFactory builds a fresh, unstarted connection.
type ConnFactory func(name string) (core.MediaConnection, error)

type Controller struct {
	Rooms   *relaystore.Client
	Connect ConnFactory
	Source  core.MediaSource
	Stream  *media.RemoteStream
	Surface core.Surface

	mu      sync.Mutex
	used    bool
	session *negotiation.Session
	conn    core.MediaConnection
}

// current returns the live session and connection, if any.
func (c *Controller) current() (*negotiation.Session, core.MediaConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.conn
}

// Done is closed when the session loop exits. Nil before a session started.
func (c *Controller) Done() <-chan struct{} {
	s, _ := c.current()
	if s == nil {
		return nil
	}
	return s.Done()
}

// Stable is closed once the signaling exchange completed. Nil before a session started.
func (c *Controller) Stable() <-chan struct{} {
	s, _ := c.current()
	if s == nil {
		return nil
	}
	return s.Stable()
}

// State reports the negotiation state of the current session.
func (c *Controller) State() negotiation.State {
	s, _ := c.current()
	if s == nil {
		return negotiation.StateIdle
	}
	return s.State()
}

// Close stops the session loop, closes the connection and releases media.
func (c *Controller) Close() {
	c.mu.Lock()
	s, conn := c.session, c.conn
	c.mu.Unlock()

	if s != nil {
		s.Close()
	}
	if conn != nil {
		conn.Close()
	}
	if c.Stream != nil {
		c.Stream.Close()
	}
	if closer, ok := c.Source.(interface{ Close() }); ok {
		closer.Close()
	}
}
