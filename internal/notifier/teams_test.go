package notifier_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-intake/internal/config"
	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/notifier"
)

func sampleRequest() *domain.SupportRequest {
	category := domain.CategoryCancellation
	summary := "Customer wants to cancel."
	return &domain.SupportRequest{
		ID:           "req-123",
		CustomerName: "Jane Doe",
		Email:        "jane@example.com",
		Subject:      "Cancel my subscription",
		Description:  "I want to cancel immediately",
		Category:     &category,
		AISummary:    &summary,
		Status:       domain.StatusCompleted,
		CreatedAt:    time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestNotify_SendsMessageCard(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
	}))
	defer server.Close()

	dispatcher := notifier.NewDispatcher(config.NotifierConfig{
		WebhookURL:     server.URL,
		TimeoutSeconds: 5,
		AdminBaseURL:   "http://support.example.com",
	}, zap.NewNop())

	require.NoError(t, dispatcher.Notify(context.Background(), sampleRequest()))

	assert.Equal(t, "MessageCard", captured["@type"])
	assert.Equal(t, "FF6B35", captured["themeColor"])

	sections, ok := captured["sections"].([]any)
	require.True(t, ok)
	require.Len(t, sections, 2)

	facts := sections[0].(map[string]any)["facts"].([]any)
	values := map[string]string{}
	for _, f := range facts {
		fact := f.(map[string]any)
		values[fact["name"].(string)] = fact["value"].(string)
	}
	assert.Equal(t, "Jane Doe", values["Customer"])
	assert.Equal(t, "jane@example.com", values["Email"])
	assert.Equal(t, "Cancel my subscription", values["Subject"])
	assert.Equal(t, "cancellation_request", values["Category"])

	actions := captured["potentialAction"].([]any)
	require.Len(t, actions, 1)
	targets := actions[0].(map[string]any)["targets"].([]any)
	assert.Equal(t, "http://support.example.com/admin/requests/req-123", targets[0].(map[string]any)["uri"])
}

func TestNotify_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	dispatcher := notifier.NewDispatcher(config.NotifierConfig{
		WebhookURL:     server.URL,
		TimeoutSeconds: 5,
	}, zap.NewNop())

	err := dispatcher.Notify(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNotify_NoopWhenUnconfigured(t *testing.T) {
	dispatcher := notifier.NewDispatcher(config.NotifierConfig{}, zap.NewNop())
	assert.NoError(t, dispatcher.Notify(context.Background(), sampleRequest()))
}
