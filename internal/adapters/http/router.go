package http

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/dkeye/P2PCall/internal/adapters/signal"
	"github.com/dkeye/P2PCall/internal/config"
	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName    = "P2PCallSessions"
	clientTokenKey    = "client_token"
	clientTokenNewKey = "client_token_new"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a stable per-client token in the cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			c.Set(clientTokenNewKey, true)
			session.Set("ct", token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// MetricsMiddleware counts every request by route and status code.
func MetricsMiddleware(m *metrics.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		op := c.FullPath()
		if op == "" {
			op = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method+" "+op, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, store core.DocumentStore, m *metrics.Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// ClientIP keys the rate limit, so forwarded headers are not trusted.
	if err := r.SetTrustedProxies(nil); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("trusted proxies")
	}
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(MetricsMiddleware(m))

	cs := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, cs))
	r.Use(ClientTokenMiddleware())

	if st, err := os.Stat(cfg.StaticPath); err == nil && st.IsDir() {
		r.Static("/static", cfg.StaticPath)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	log.Info().Str("module", "adapters.http").Int64("read_limit", cfg.ReadLimit).Msg("router setup")

	h := &StoreHandlers{Store: store, ReadLimit: cfg.ReadLimit}
	watch := &signal.WatchWSController{
		Store:      store,
		PingPeriod: cfg.PingPeriod,
		ReadLimit:  cfg.ReadLimit,
		Metrics:    m,
	}
	limiter := NewClientRateLimiter(cfg.RateLimit, cfg.RateInterval)

	api := r.Group("/api/store")

	api.GET("/doc/*path", h.GetDocument)
	writes := api.Group("", limiter.Middleware(m))
	writes.PUT("/doc/*path", h.CreateDocument)
	writes.PATCH("/doc/*path", h.UpdateDocument)
	writes.POST("/collection/*path", h.AddRecord)

	api.GET("/watch/doc/*path", func(c *gin.Context) {
		watch.HandleWatchDocument(ctx, c, storePath(c))
	})
	api.GET("/watch/collection/*path", func(c *gin.Context) {
		watch.HandleWatchCollection(ctx, c, storePath(c))
	})

	return r
}
