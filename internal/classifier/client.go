package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/support-intake/internal/config"
	"github.com/spec-kit/support-intake/internal/domain"
)

// Failure kinds for a classification attempt. None of them indicates a
// request-specific defect, so callers treat all three as retryable.
var (
	ErrUnreachable     = errors.New("classification service unreachable")
	ErrTimeout         = errors.New("classification timed out")
	ErrMalformedOutput = errors.New("classification output malformed")
)

const maxSummaryLen = 500

// Result is a normalized classification outcome. Category is always a member
// of the fixed enumeration and Confidence lies in [0,1].
type Result struct {
	Category   domain.Category
	Summary    string
	Confidence float64
}

// Client turns an unreliable model call into a two-outcome contract: a typed
// Result or one of the failure sentinels above. Health probes the backend
// without running a classification.
type Client interface {
	Classify(ctx context.Context, subject, description string) (*Result, error)
	Health(ctx context.Context) error
}

type ollamaClient struct {
	baseURL string
	model   string
	timeout time.Duration
	http    *http.Client
}

// NewClient builds a classifier client against an Ollama-compatible endpoint.
func NewClient(cfg config.ClassifierConfig) Client {
	return &ollamaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		timeout: cfg.Timeout(),
		http:    &http.Client{},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type rawResult struct {
	Category   string   `json:"category"`
	Summary    string   `json:"summary"`
	Confidence *float64 `json:"confidence"`
}

func (c *ollamaClient) Classify(ctx context.Context, subject, description string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: buildPrompt(subject, description),
		Stream: false,
		Options: map[string]any{
			"temperature": 0.1,
			"top_p":       0.9,
			"num_predict": 200,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var gen generateResponse
	if err := json.Unmarshal(payload, &gen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	raw, err := parseModelOutput(gen.Response)
	if err != nil {
		return nil, err
	}
	return normalize(raw), nil
}

// Health checks backend reachability via the model listing endpoint.
func (c *ollamaClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

func buildPrompt(subject, description string) string {
	categories := domain.Categories()
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = "- " + string(c)
	}

	return fmt.Sprintf(`You are a customer support classification system. Analyze this support request and classify it into ONE of these exact categories:
%s

Support Request:
Subject: %s
Description: %s

Respond with ONLY a JSON object in this exact format:
{
    "category": "one_of_the_categories_above",
    "summary": "Brief 1-2 sentence summary of the issue",
    "confidence": 0.95
}

Do not include any other text or explanations.`, strings.Join(names, "\n"), subject, description)
}

// Models wrap answers in prose or code fences often enough that the client
// has to dig the JSON object out of the surrounding text.
var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

func parseModelOutput(text string) (*rawResult, error) {
	trimmed := strings.TrimSpace(text)

	var raw rawResult
	if err := json.Unmarshal([]byte(trimmed), &raw); err == nil && raw.Category != "" {
		return &raw, nil
	}

	for _, match := range jsonObjectPattern.FindAllString(trimmed, -1) {
		var candidate rawResult
		if err := json.Unmarshal([]byte(match), &candidate); err == nil && candidate.Category != "" {
			return &candidate, nil
		}
	}

	return nil, fmt.Errorf("%w: no parseable result in model output", ErrMalformedOutput)
}

func normalize(raw *rawResult) *Result {
	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		summary = "No summary provided"
	}
	if len(summary) > maxSummaryLen {
		summary = truncate(summary, maxSummaryLen-3) + "..."
	}

	confidence := 0.7
	if raw.Confidence != nil && *raw.Confidence >= 0 && *raw.Confidence <= 1 {
		confidence = *raw.Confidence
	}

	return &Result{
		Category:   domain.NormalizeCategory(strings.TrimSpace(raw.Category)),
		Summary:    summary,
		Confidence: confidence,
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
