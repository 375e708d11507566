package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/metrics"
	"github.com/ilindan-dev/group-notifier/internal/storage/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is a wrapper for the HTTP server.
type Server struct {
	*http.Server
	logger zerolog.Logger
}

// NewRouter builds the gin engine with middleware, API routes, uploads, health and metrics.
func NewRouter(
	cfg *config.Config,
	handlers *Handlers,
	store *media.Store,
	reg *prometheus.Registry,
	m *metrics.Metrics,
	logger *zerolog.Logger,
) *gin.Engine {
	log := logger.With().Str("layer", "http_server").Logger()

	if cfg.HTTP.GinMode != "" {
		log.Info().Str("mode", cfg.HTTP.GinMode).Msg("setting gin mode")
		gin.SetMode(cfg.HTTP.GinMode)
	}

	router := gin.New()
	if cfg.HTTP.MaxMultipartMem > 0 {
		router.MaxMultipartMemory = cfg.HTTP.MaxMultipartMem
	}

	router.Use(gin.Recovery(), RequestLogger(log), Instrument(m))

	log.Info().Msg("registering api routes")
	handlers.RegisterRoutes(router)

	log.Info().Str("prefix", store.PublicPrefix()).Str("dir", store.Dir()).Msg("serving uploaded media")
	router.Static(store.PublicPrefix(), store.Dir())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	return router
}

// NewServer wraps the router in an http.Server.
func NewServer(cfg *config.Config, router *gin.Engine, logger *zerolog.Logger) *Server {
	log := logger.With().Str("layer", "http_server").Logger()
	log.Info().Str("addr", cfg.HTTP.Port).Msg("initializing http server")

	server := &http.Server{
		Addr:         cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Server{server, log}
}
