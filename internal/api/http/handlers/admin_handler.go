package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-intake/internal/api/dto"
	"github.com/spec-kit/support-intake/internal/auth"
	"github.com/spec-kit/support-intake/internal/service"
	apperrors "github.com/spec-kit/support-intake/pkg/util/errorutil"
)

// AdminHandler manages authenticated admin endpoints.
type AdminHandler struct {
	service       *service.RequestService
	authenticator *auth.AdminAuthenticator
}

// NewAdminHandler constructs handler.
func NewAdminHandler(requestService *service.RequestService, authenticator *auth.AdminAuthenticator) *AdminHandler {
	return &AdminHandler{service: requestService, authenticator: authenticator}
}

// Login POST /auth/admin/login.
func (h *AdminHandler) Login(c *fiber.Ctx) error {
	var payload dto.LoginPayload
	if err := c.BodyParser(&payload); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := payload.Validate(); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}

	token, expiresAt, err := h.authenticator.Login(payload.Email, payload.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{AccessToken: token, ExpiresAt: expiresAt}})
}

// GetRequest GET /admin/requests/:id.
func (h *AdminHandler) GetRequest(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromRequest(req)})
}

// Requeue POST /admin/requests/:id/requeue. Returns a failed request to
// pending and hands it back to the worker pool.
func (h *AdminHandler) Requeue(c *fiber.Ctx) error {
	if err := h.service.Requeue(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"requeued": true}})
}
