package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/dto"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/services"
	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
)

func success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(dto.Envelope{Success: true, Data: data})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.Envelope{Success: false, Message: message})
}

// statusFor maps service and query errors to HTTP statuses. Anything
// unrecognised is a server error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, query.ErrInvalidQuery):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized), errors.Is(err, services.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrEmailTaken):
		return fiber.StatusConflict
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders errors that escaped a handler. Server errors are
// logged and reported to Sentry on the request hub.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		slog.Error("unhandled server error",
			"request_id", requestID(c),
			"method", c.Method(),
			"path", c.Path(),
			"error", err.Error(),
		)
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
	}
	return fail(c, code, err.Error())
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
