package handlers

import (
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/dto"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.authService.Register(c.UserContext(), &req)
	if err != nil {
		if code := statusFor(err); code < fiber.StatusInternalServerError {
			return fail(c, code, err.Error())
		}
		return err
	}

	return success(c, fiber.StatusCreated, resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		if code := statusFor(err); code < fiber.StatusInternalServerError {
			return fail(c, code, err.Error())
		}
		return err
	}

	return success(c, fiber.StatusOK, resp)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Not authorized to access this route")
	}

	user, err := h.authService.Me(c.UserContext(), actor.ID)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return success(c, fiber.StatusOK, user)
}
