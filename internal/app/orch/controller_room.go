package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/P2PCall/internal/app/negotiation"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// CreateRoom runs the caller side. ctx bounds the whole session, not just the call.
func (c *Controller) CreateRoom(ctx context.Context) (domain.RoomID, error) {
	s, err := c.prepare(ctx, domain.RoleCaller)
	if err != nil {
		return "", err
	}
	id, err := s.Offer(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("create room failed")
		c.halt()
		return "", err
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("room created")
	c.Surface.RoomCreated(id)
	return id, nil
}

// JoinRoom runs the callee side. A missing or malformed room leaves nothing
// behind and the controller may be used again.
func (c *Controller) JoinRoom(ctx context.Context, id domain.RoomID) error {
	s, err := c.prepare(ctx, domain.RoleCallee)
	if err != nil {
		return err
	}
	err = s.Answer(ctx, id)
	switch {
	case err == nil:
		log.Info().Str("module", "orch").Str("room", string(id)).Msg("room joined")
		return nil
	case errors.Is(err, domain.ErrRoomNotFound):
		log.Warn().Str("module", "orch").Str("room", string(id)).Msg("room not found")
		c.reset()
		c.Surface.RoomNotFound(id)
		return err
	case errors.Is(err, domain.ErrMalformedRoom):
		log.Warn().Err(err).Str("module", "orch").Str("room", string(id)).Msg("room unusable")
		c.reset()
		return err
	default:
		log.Error().Err(err).Str("module", "orch").Str("room", string(id)).Msg("join room failed")
		c.halt()
		return err
	}
}

// prepare claims the controller and builds the connection and session for role.
func (c *Controller) prepare(ctx context.Context, role domain.Role) (*negotiation.Session, error) {
	c.mu.Lock()
	if c.used {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}
	c.used = true
	c.mu.Unlock()

	conn, err := c.Connect(role.String())
	if err != nil {
		c.reset()
		return nil, fmt.Errorf("new connection: %w", err)
	}
	if err := conn.Start(ctx); err != nil {
		conn.Close()
		c.reset()
		return nil, fmt.Errorf("start connection: %w", err)
	}
	s := negotiation.NewSession(role, conn, c.Rooms)
	s.OnRoomResolved(func(ctx context.Context) {
		c.bindMedia(conn)
		c.publishLocalMedia(ctx, conn)
	})
	c.mu.Lock()
	c.session, c.conn = s, conn
	c.mu.Unlock()
	return s, nil
}

// reset drops a session that never wired anything so another call may run.
func (c *Controller) reset() {
	c.mu.Lock()
	conn := c.conn
	c.session, c.conn = nil, nil
	c.used = false
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// halt closes the connection of a failed session. The controller stays used.
func (c *Controller) halt() {
	_, conn := c.current()
	if conn != nil {
		conn.Close()
	}
}
