// Package notify delivers approval messages to the chat session an agent action came from.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/metrics"
	"github.com/SscSPs/agent_governance/internal/middleware"
)

// LogNotifier writes every message to the structured log. It is used when no webhook is configured.
type LogNotifier struct{}

var _ portssvc.SessionNotifier = LogNotifier{}

func (LogNotifier) PostMessage(ctx context.Context, sessionID string, text string) error {
	middleware.GetLoggerFromCtx(ctx).Info("Session notification",
		slog.String("session_id", sessionID),
		slog.String("text", text))
	return nil
}

// WebhookNotifier POSTs {"sessionId", "text"} as JSON to a chat service.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

var _ portssvc.SessionNotifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates a notifier for url. A zero timeout means 5 seconds.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type webhookMessage struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	SentAt    string `json:"sentAt"`
}

func (n *WebhookNotifier) PostMessage(ctx context.Context, sessionID string, text string) error {
	if n.url == "" {
		return fmt.Errorf("notification webhook URL is required")
	}
	body, err := json.Marshal(webhookMessage{
		SessionID: sessionID,
		Text:      text,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// BestEffort delivers messages on a separate goroutine so callers never wait on the sink.
// Failures are logged, counted, and published on Errors without blocking.
type BestEffort struct {
	next    portssvc.SessionNotifier
	timeout time.Duration
	errs    chan error
}

var _ portssvc.SessionNotifier = (*BestEffort)(nil)

// NewBestEffort wraps next. Each delivery gets its own timeout, detached from the caller's cancellation.
func NewBestEffort(next portssvc.SessionNotifier, timeout time.Duration) *BestEffort {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BestEffort{next: next, timeout: timeout, errs: make(chan error, 16)}
}

// Errors exposes delivery failures. Failures are dropped when nobody drains the channel.
func (b *BestEffort) Errors() <-chan error {
	return b.errs
}

// PostMessage always returns nil immediately.
func (b *BestEffort) PostMessage(ctx context.Context, sessionID string, text string) error {
	logger := middleware.GetLoggerFromCtx(ctx)
	deliveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	go func() {
		defer cancel()
		if err := b.next.PostMessage(deliveryCtx, sessionID, text); err != nil {
			metrics.RecordNotification("failed")
			logger.Warn("Session notification failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			select {
			case b.errs <- fmt.Errorf("session %s: %w", sessionID, err):
			default:
			}
			return
		}
		metrics.RecordNotification("sent")
	}()
	return nil
}
