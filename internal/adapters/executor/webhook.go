package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
)

const maxErrorBody = 512

// WebhookHandler forwards an action to the financial domain service over HTTP.
// The service answers 2xx with an ExecutionResult document, anything else is a failed step.
type WebhookHandler struct {
	url        string
	httpClient *http.Client
}

var _ Handler = (*WebhookHandler)(nil)

// NewWebhookHandler creates a handler posting to url. A zero timeout means 30 seconds.
func NewWebhookHandler(url string, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookHandler{url: url, httpClient: &http.Client{Timeout: timeout}}
}

type actionRequest struct {
	Action     domain.ActionType `json:"action"`
	Parameters map[string]any    `json:"parameters"`
}

func (h *WebhookHandler) Handle(ctx context.Context, action domain.ActionType, parameters map[string]any) (*domain.ExecutionResult, error) {
	body, err := json.Marshal(actionRequest{Action: action, Parameters: parameters})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s rejected by domain service: status %d: %s", action, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var result domain.ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return &result, nil
}
