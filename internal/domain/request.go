package domain

import "time"

// ProcessingStatus enumerates lifecycle states for support requests.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether no further pipeline transitions occur from s.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Category enumerates classification outcomes for a support request.
type Category string

const (
	CategoryBilling        Category = "billing"
	CategoryTechnicalIssue Category = "technical_issue"
	CategoryCancellation   Category = "cancellation_request"
	CategoryFeatureRequest Category = "feature_request"
	CategoryComplaint      Category = "complaint"
	CategoryGeneralInquiry Category = "general_inquiry"
	CategoryOther          Category = "other"
)

// Categories lists every valid category.
func Categories() []Category {
	return []Category{
		CategoryBilling,
		CategoryTechnicalIssue,
		CategoryCancellation,
		CategoryFeatureRequest,
		CategoryComplaint,
		CategoryGeneralInquiry,
		CategoryOther,
	}
}

// NormalizeCategory maps an arbitrary classifier output string onto the fixed
// enumeration. Anything outside the set becomes CategoryOther.
func NormalizeCategory(raw string) Category {
	c := Category(raw)
	switch c {
	case CategoryBilling, CategoryTechnicalIssue, CategoryCancellation,
		CategoryFeatureRequest, CategoryComplaint, CategoryGeneralInquiry, CategoryOther:
		return c
	}
	return CategoryOther
}

// Critical reports whether the category triggers notification dispatch.
func (c Category) Critical() bool {
	switch c {
	case CategoryTechnicalIssue, CategoryCancellation, CategoryComplaint:
		return true
	}
	return false
}

// SupportRequest is the aggregate for customer support submissions.
// Submission fields are immutable after creation; category, AISummary and
// NotificationSent are written only by the processing pipeline.
type SupportRequest struct {
	ID           string
	CustomerName string
	Email        string
	Subject      string
	Description  string

	Category      *Category
	AISummary     *string
	FailureReason *string

	Status           ProcessingStatus
	NotificationSent bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}
