package api

import (
	"context"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/illegalcall/bank-relay/internal/config"
	"github.com/illegalcall/bank-relay/internal/events"
	"github.com/illegalcall/bank-relay/internal/metrics"
	"github.com/illegalcall/bank-relay/internal/relay"
	"github.com/illegalcall/bank-relay/internal/stats"
)

// Deps are the collaborators of the HTTP layer. Stats and Events may be nil,
// which disables the matching feature.
type Deps struct {
	Relay    *relay.Relay
	Metrics  *metrics.RelayMetrics
	Stats    *stats.Recorder
	Events   *events.Publisher
	Gatherer prometheus.Gatherer
}

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	relay    *relay.Relay
	metrics  *metrics.RelayMetrics
	stats    *stats.Recorder
	events   *events.Publisher
	gatherer prometheus.Gatherer
	log      zerolog.Logger

	recorders sync.WaitGroup
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "bank-relay",
		DisableStartupMessage: cfg.Server.IsProduction(),
		ErrorHandler:          errorHandler,
	})

	server := &Server{
		app:      app,
		cfg:      cfg,
		relay:    deps.Relay,
		metrics:  deps.Metrics,
		stats:    deps.Stats,
		events:   deps.Events,
		gatherer: deps.Gatherer,
		log:      log,
	}

	app.Use(requestID())
	app.Use(requestLogger(log))
	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.Server.IsProduction()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.CORSAllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
		MaxAge:       3600,
	}))

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.app.Post("/", s.handleRelayPost)
	s.app.Get("/", s.handleRelayGet)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/stats", s.handleStats)

	gatherer := s.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func (s *Server) Start() error {
	s.log.Info().
		Str("port", s.cfg.Server.Port).
		Bool("relay_configured", s.relay.Configured()).
		Bool("stats_enabled", s.stats != nil).
		Bool("events_enabled", s.events != nil).
		Msg("starting HTTP server")
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops accepting requests, then waits for pending stats and event
// writes until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	return s.waitRecorders(ctx)
}

func (s *Server) waitRecorders(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.recorders.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
