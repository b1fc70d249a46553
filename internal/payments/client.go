package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to the payment processor's internal API. It only
// authorizes a hold; capture confirmation arrives via webhook.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL, apiKey string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type CreateIntentRequest struct {
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Intent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/payment_intents", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment processor unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payment processor returned %d: %s", resp.StatusCode, string(b))
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, err
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("payment processor returned empty intent id")
	}
	return &intent, nil
}

// WebhookEvent is the processor's capture notification. Only the
// fields the escrow core consumes are decoded.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		PaymentIntentID string            `json:"payment_intent_id"`
		Metadata        map[string]string `json:"metadata"`
	} `json:"data"`
}

const EventPaymentCaptured = "payment_intent.succeeded"
