package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/tradesim/internal/domain"
)

// EventTransactionsExecuted is the event type of webhook deliveries.
const EventTransactionsExecuted = "transactions.executed"

// Webhook posts each cycle's transactions as one JSON document to a URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook sink with the given request timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Event     string   `json:"event"`
	Timestamp string   `json:"timestamp"`
	Data      []record `json:"data"`
}

// Name identifies the sink in logs.
func (w *Webhook) Name() string { return "webhook" }

// Publish delivers txs. Non-2xx responses are reported as errors; there
// are no retries.
func (w *Webhook) Publish(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	payload := webhookPayload{
		Event:     EventTransactionsExecuted,
		Timestamp: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      make([]record, 0, len(txs)),
	}
	for _, tx := range txs {
		payload.Data = append(payload.Data, toRecord(tx))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Event-Type", EventTransactionsExecuted)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: unexpected status %d", w.url, resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (w *Webhook) Close() error { return nil }
