package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketplace/config"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// CheckoutSessionRequest describes the payment session the orchestrator
// needs. Metadata must carry order_id and user_id: the reconciler depends on
// getting exactly those back on the webhook.
type CheckoutSessionRequest struct {
	Amount     int64             `json:"amount"`
	OrderID    string            `json:"order_id"`
	BuyerEmail string            `json:"customer_email"`
	ReturnURL  string            `json:"return_url"`
	Metadata   map[string]string `json:"metadata"`
}

// CheckoutSession is the provider-issued session handle.
type CheckoutSession struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

// PaymentClient is the outbound surface of the external payment provider.
type PaymentClient interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
}

// ProviderClient talks to the payment provider's HTTP API.
type ProviderClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewProviderClient creates a payment provider client from config.
func NewProviderClient(cfg config.PaymentConfig) *ProviderClient {
	return &ProviderClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger: util.GetLogger(),
	}
}

// CreateCheckoutSession creates a hosted checkout session with the provider.
func (c *ProviderClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	start := time.Now()
	defer func() {
		util.PaymentSessionLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkouts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("Payment provider rejected session request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return nil, fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	return &session, nil
}
