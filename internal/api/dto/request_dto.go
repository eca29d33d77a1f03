package dto

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/support-intake/internal/domain"
)

var validate = validator.New()

// CreateRequestPayload is the submission payload. Bounds mirror the store's
// column limits.
type CreateRequestPayload struct {
	CustomerName string `json:"customer_name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Subject      string `json:"subject" validate:"required,max=200"`
	Description  string `json:"description" validate:"required"`
}

// Validate checks the payload against its constraints.
func (p CreateRequestPayload) Validate() error {
	return validate.Struct(p)
}

// LoginPayload is the admin login payload.
type LoginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate checks the payload against its constraints.
func (p LoginPayload) Validate() error {
	return validate.Struct(p)
}

// RequestResponse is the public view of a support request.
type RequestResponse struct {
	ID               string                  `json:"id"`
	CustomerName     string                  `json:"customer_name"`
	Email            string                  `json:"email"`
	Subject          string                  `json:"subject"`
	Description      string                  `json:"description"`
	Category         *domain.Category        `json:"category"`
	AISummary        *string                 `json:"ai_summary"`
	FailureReason    *string                 `json:"failure_reason,omitempty"`
	ProcessingStatus domain.ProcessingStatus `json:"processing_status"`
	NotificationSent bool                    `json:"notification_sent"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
	ProcessedAt      *time.Time              `json:"processed_at"`
}

// FromRequest maps the domain aggregate onto the response shape.
func FromRequest(req *domain.SupportRequest) RequestResponse {
	return RequestResponse{
		ID:               req.ID,
		CustomerName:     req.CustomerName,
		Email:            req.Email,
		Subject:          req.Subject,
		Description:      req.Description,
		Category:         req.Category,
		AISummary:        req.AISummary,
		FailureReason:    req.FailureReason,
		ProcessingStatus: req.Status,
		NotificationSent: req.NotificationSent,
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.UpdatedAt,
		ProcessedAt:      req.ProcessedAt,
	}
}

// StatsResponse is the aggregation payload.
type StatsResponse struct {
	TotalRequests     int64            `json:"total_requests"`
	StatusBreakdown   map[string]int64 `json:"status_breakdown"`
	CategoryBreakdown map[string]int64 `json:"category_breakdown"`
	Timestamp         time.Time        `json:"timestamp"`
}

// LoginResponse carries the issued admin token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
