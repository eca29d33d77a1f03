package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-intake/internal/api/dto"
	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/service"
	apperrors "github.com/spec-kit/support-intake/pkg/util/errorutil"
)

// RequestsHandler manages public support-request endpoints.
type RequestsHandler struct {
	service *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{service: requestService}
}

// Create POST /api/support-requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	var payload dto.CreateRequestPayload
	if err := c.BodyParser(&payload); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := payload.Validate(); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}

	req, err := h.service.Submit(c.UserContext(), service.SubmitInput{
		CustomerName: payload.CustomerName,
		Email:        payload.Email,
		Subject:      payload.Subject,
		Description:  payload.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.FromRequest(req)})
}

// Get GET /api/support-requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromRequest(req)})
}

// List GET /api/support-requests.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	var status *domain.ProcessingStatus
	if raw := c.Query("status"); raw != "" {
		parsed := domain.ProcessingStatus(raw)
		if !parsed.Valid() {
			return apperrors.NewValidationError("unknown status", map[string]any{"status": raw})
		}
		status = &parsed
	}

	offset := parseIntQuery(c, "offset", 0)
	limit := parseIntQuery(c, "limit", 100)

	requests, err := h.service.List(c.UserContext(), status, offset, limit)
	if err != nil {
		return err
	}
	items := make([]dto.RequestResponse, 0, len(requests))
	for i := range requests {
		items = append(items, dto.FromRequest(&requests[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseIntQuery(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
