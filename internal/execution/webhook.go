package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bot-fleet-engine/internal/strategy"
)

// WebhookConfig configures the broker bridge executor
type WebhookConfig struct {
	URL            string
	Token          string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxRetryTime   time.Duration
}

// OrderRequest is the JSON body posted to the broker bridge
type OrderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	BotLabel      string          `json:"bot_label"`
	Signal        strategy.Signal `json:"signal"`
	SentAt        time.Time       `json:"sent_at"`
}

// WebhookExecutor posts each signal to an HTTP broker bridge
type WebhookExecutor struct {
	url          string
	token        string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxRetryTime time.Duration
	logger       zerolog.Logger
}

// NewWebhookExecutor creates a webhook executor
func NewWebhookExecutor(cfg WebhookConfig, logger zerolog.Logger) *WebhookExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 1
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = 20 * time.Second
	}

	return &WebhookExecutor{
		url:          cfg.URL,
		token:        cfg.Token,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		maxRetryTime: cfg.MaxRetryTime,
		logger:       logger.With().Str("component", "WebhookExecutor").Logger(),
	}
}

// Execute posts the order, retrying transient failures with the same client order id
func (w *WebhookExecutor) Execute(ctx context.Context, signal strategy.Signal, botLabel string) bool {
	order := OrderRequest{
		ClientOrderID: uuid.New().String(),
		BotLabel:      botLabel,
		Signal:        signal,
		SentAt:        time.Now().UTC(),
	}
	body, err := json.Marshal(order)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to encode order")
		return false
	}

	operation := func() error {
		if err := w.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", order.ClientOrderID)
		if w.token != "" {
			req.Header.Set("Authorization", "Bearer "+w.token)
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("error posting order: %w", err)
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		statusErr := fmt.Errorf("broker bridge returned status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = w.maxRetryTime
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		w.logger.Warn().Err(err).
			Str("bot", botLabel).
			Str("symbol", signal.Symbol).
			Str("client_order_id", order.ClientOrderID).
			Msg("Order not executed")
		return false
	}

	w.logger.Info().
		Str("bot", botLabel).
		Str("symbol", signal.Symbol).
		Str("side", string(signal.Direction)).
		Str("client_order_id", order.ClientOrderID).
		Msg("Order accepted by broker bridge")
	return true
}
