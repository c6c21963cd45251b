package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illegalcall/bank-relay/internal/models"
)

const messageStatsDisabled = "Statistiques indisponibles. Configurez REDIS_ADDR pour les activer."

const recordTimeout = 5 * time.Second

// handleRelayPost always answers 200 with an envelope. Metrics are updated
// inline; stats and events are written in the background so a slow Redis or
// broker never delays the response.
func (s *Server) handleRelayPost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	outcome := s.relay.HandlePost(ctx, c.Body())

	ev := outcome.Event(uuid.New().String(), getRequestID(c), time.Now())
	s.metrics.Observe(ev)

	s.recorders.Add(1)
	go func() {
		defer s.recorders.Done()
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		s.record(recordCtx, ev)
	}()

	return c.Status(fiber.StatusOK).JSON(outcome.Envelope)
}

func (s *Server) handleRelayGet(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(s.relay.HandleGet())
}

func (s *Server) record(ctx context.Context, ev models.ConnectionTestEvent) {
	log := zerolog.Ctx(ctx)

	if s.stats != nil {
		if err := s.stats.Record(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("failed to record stats")
		}
	}
	if err := s.events.Publish(ev); err != nil {
		log.Warn().Err(err).Msg("failed to publish connection test event")
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	checks := fiber.Map{
		"relay": fiber.Map{
			"status":     "healthy",
			"configured": s.relay.Configured(),
		},
	}
	healthy := true

	if s.stats != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		start := time.Now()
		if err := s.stats.Ping(ctx); err != nil {
			healthy = false
			checks["redis"] = fiber.Map{
				"status":        "unhealthy",
				"response_time": time.Since(start).String(),
				"error":         err.Error(),
			}
			zerolog.Ctx(c.UserContext()).Error().Err(err).Msg("redis health check failed")
		} else {
			checks["redis"] = fiber.Map{
				"status":        "healthy",
				"response_time": time.Since(start).String(),
			}
		}
	}

	status, code := "healthy", fiber.StatusOK
	if !healthy {
		status, code = "unhealthy", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":      status,
		"timestamp":   time.Now().UTC(),
		"environment": s.cfg.Server.Environment,
		"checks":      checks,
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.stats == nil {
		return c.Status(fiber.StatusServiceUnavailable).
			JSON(models.NewEnvelope(false, messageStatsDisabled, nil))
	}

	snapshot, err := s.stats.Snapshot(c.UserContext())
	if err != nil {
		zerolog.Ctx(c.UserContext()).Error().Err(err).Msg("failed to read stats")
		return c.Status(fiber.StatusInternalServerError).
			JSON(models.NewEnvelope(false, "Erreur serveur: "+err.Error(), nil))
	}
	return c.JSON(snapshot)
}
