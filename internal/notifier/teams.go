package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/support-intake/internal/config"
	"github.com/spec-kit/support-intake/internal/domain"
)

// Dispatcher sends a structured alert for a completed critical request.
// Delivery is fire-and-forget from the pipeline's perspective: a returned
// error leaves the request completed with notification_sent still false.
type Dispatcher interface {
	Notify(ctx context.Context, req *domain.SupportRequest) error
}

// NewDispatcher builds a Teams webhook dispatcher when a webhook URL is
// configured, otherwise a noop implementation.
func NewDispatcher(cfg config.NotifierConfig, logger *zap.Logger) Dispatcher {
	url := strings.TrimSpace(cfg.WebhookURL)
	if url == "" {
		logger.Warn("TEAMS_WEBHOOK_URL not configured; notifications disabled")
		return noopDispatcher{logger: logger}
	}
	return &teamsDispatcher{
		webhookURL:   url,
		adminBaseURL: strings.TrimRight(cfg.AdminBaseURL, "/"),
		client:       &http.Client{Timeout: cfg.Timeout()},
		logger:       logger,
	}
}

type noopDispatcher struct {
	logger *zap.Logger
}

func (n noopDispatcher) Notify(ctx context.Context, req *domain.SupportRequest) error {
	n.logger.Debug("skipping notification, dispatcher disabled", zap.String("request_id", req.ID))
	return nil
}

type teamsDispatcher struct {
	webhookURL   string
	adminBaseURL string
	client       *http.Client
	logger       *zap.Logger
}

// MessageCard layout mirrors the connector card schema Teams webhooks accept.
type messageCard struct {
	Type       string       `json:"@type"`
	Context    string       `json:"@context"`
	ThemeColor string       `json:"themeColor"`
	Summary    string       `json:"summary"`
	Sections   []section    `json:"sections"`
	Actions    []openURI    `json:"potentialAction"`
}

type section struct {
	ActivityTitle    string `json:"activityTitle,omitempty"`
	ActivitySubtitle string `json:"activitySubtitle,omitempty"`
	Facts            []fact `json:"facts,omitempty"`
	Markdown         bool   `json:"markdown,omitempty"`
	Text             string `json:"text,omitempty"`
}

type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type openURI struct {
	Type    string      `json:"@type"`
	Name    string      `json:"name"`
	Targets []uriTarget `json:"targets"`
}

type uriTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

func (t *teamsDispatcher) Notify(ctx context.Context, req *domain.SupportRequest) error {
	body, err := json.Marshal(t.buildCard(req))
	if err != nil {
		return fmt.Errorf("encode teams card: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build teams request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send teams notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("teams webhook returned status %d", resp.StatusCode)
	}

	t.logger.Info("teams notification sent",
		zap.String("request_id", req.ID),
		zap.String("category", categoryLabel(req)))
	return nil
}

func (t *teamsDispatcher) buildCard(req *domain.SupportRequest) messageCard {
	description := req.Description
	if len(description) > 500 {
		description = truncate(description, 500) + "..."
	}

	return messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: "FF6B35",
		Summary:    fmt.Sprintf("Critical Support Request %s", req.ID),
		Sections: []section{
			{
				ActivityTitle:    "🚨 Critical Support Request Alert",
				ActivitySubtitle: fmt.Sprintf("Request %s", req.ID),
				Facts: []fact{
					{Name: "Customer", Value: req.CustomerName},
					{Name: "Email", Value: req.Email},
					{Name: "Subject", Value: req.Subject},
					{Name: "Category", Value: categoryLabel(req)},
					{Name: "Created", Value: req.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
				},
				Markdown: true,
			},
			{
				ActivityTitle: "Description",
				Text:          description,
			},
		},
		Actions: []openURI{
			{
				Type: "OpenUri",
				Name: "View Request",
				Targets: []uriTarget{
					{OS: "default", URI: fmt.Sprintf("%s/admin/requests/%s", t.adminBaseURL, req.ID)},
				},
			},
		},
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func categoryLabel(req *domain.SupportRequest) string {
	if req.Category == nil {
		return "Not classified"
	}
	return string(*req.Category)
}
