package signal

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	kindDocument   = "doc"
	kindCollection = "collection"
)

// HandleWatchDocument upgrades the request and streams snapshots of path.
func (ctl *WatchWSController) HandleWatchDocument(ctx context.Context, c *gin.Context, path string) {
	ctx, conn, cancel, ok := ctl.upgrade(ctx, c, kindDocument, path)
	if !ok {
		return
	}
	defer cancel()

	feed, err := ctl.Store.WatchDocument(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("path", path).Msg("watch document")
		return
	}
	forward(ctx, ctl, conn, kindDocument, feed)
}

// HandleWatchCollection upgrades the request and streams record changes of path.
func (ctl *WatchWSController) HandleWatchCollection(ctx context.Context, c *gin.Context, path string) {
	ctx, conn, cancel, ok := ctl.upgrade(ctx, c, kindCollection, path)
	if !ok {
		return
	}
	defer cancel()

	feed, err := ctl.Store.WatchCollection(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("path", path).Msg("watch collection")
		return
	}
	forward(ctx, ctl, conn, kindCollection, feed)
}

// forward pushes every feed item as one JSON text frame, in order, until the
// feed or the connection ends.
func forward[T any](ctx context.Context, ctl *WatchWSController, conn *WsSignalConn, kind string, feed <-chan T) {
	if ctl.Metrics != nil {
		ctl.Metrics.Watchers.WithLabelValues(kind).Inc()
		defer ctl.Metrics.Watchers.WithLabelValues(kind).Dec()
	}
	for item := range feed {
		b, err := json.Marshal(item)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("marshal feed item")
			continue
		}
		if err := conn.Send(ctx, b); err != nil {
			log.Debug().Err(err).Str("module", "signal").Msg("watch ended")
			return
		}
		if ctl.Metrics != nil {
			ctl.Metrics.Frames.WithLabelValues(kind).Inc()
		}
	}
}
