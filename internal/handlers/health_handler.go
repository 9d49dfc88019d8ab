package handlers

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	db    Pinger
	store Pinger
}

func NewHealthHandler(db, store Pinger) *HealthHandler {
	return &HealthHandler{db: db, store: store}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        probe(ctx, h.db),
		Store:     probe(ctx, h.store),
	}
	if resp.DB != "ok" || resp.Store != "ok" {
		resp.Status = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "ok"
	}
	if err := p.Ping(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "ok"
}
