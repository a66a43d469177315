package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("connection closed")

// WatchWSController streams store change feeds to websocket clients.
type WatchWSController struct {
	Store      core.DocumentStore
	PingPeriod time.Duration
	ReadLimit  int64
	Metrics    *metrics.Relay
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	done chan struct{}
	once sync.Once
}

func NewWsSignalConn(ws *websocket.Conn) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
		done: make(chan struct{}),
	}
}

// Send queues f, waiting for room in the buffer.
func (c *WsSignalConn) Send(ctx context.Context, f core.Frame) error {
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WsSignalConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *WsSignalConn) Done() <-chan struct{} { return c.done }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *WatchWSController) upgrade(ctx context.Context, c *gin.Context, kind, path string) (context.Context, *WsSignalConn, context.CancelFunc, bool) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return nil, nil, nil, false
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	conn := NewWsSignalConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	log.Info().
		Str("module", "signal").
		Str("kind", kind).
		Str("path", path).
		Str("ct", c.GetString("client_token")).
		Msg("new watch connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
	return ctx, conn, cancel, true
}
