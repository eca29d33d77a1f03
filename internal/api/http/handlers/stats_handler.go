package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-intake/internal/api/dto"
	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/service"
)

// StatsHandler exposes the aggregation snapshot.
type StatsHandler struct {
	service *service.RequestService
}

// NewStatsHandler constructs handler.
func NewStatsHandler(requestService *service.RequestService) *StatsHandler {
	return &StatsHandler{service: requestService}
}

// Get GET /api/stats.
func (h *StatsHandler) Get(c *fiber.Ctx) error {
	agg, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}

	statusBreakdown := make(map[string]int64, 4)
	for _, status := range []domain.ProcessingStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed,
	} {
		statusBreakdown[string(status)] = agg.StatusBreakdown[status]
	}

	categoryBreakdown := make(map[string]int64, len(agg.CategoryBreakdown))
	for category, count := range agg.CategoryBreakdown {
		categoryBreakdown[string(category)] = count
	}

	return c.JSON(dto.StatsResponse{
		TotalRequests:     agg.Total,
		StatusBreakdown:   statusBreakdown,
		CategoryBreakdown: categoryBreakdown,
		Timestamp:         time.Now().UTC(),
	})
}
