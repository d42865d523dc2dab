package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/orrn/printfarm/internal/db"
)

type WebhookPayload struct {
	Event     string        `json:"event"`
	Timestamp time.Time     `json:"timestamp"`
	Data      *Notification `json:"data"`
	Signature string        `json:"signature,omitempty"`
}

// WebhookSink posts notifications to every enabled webhook subscribed to the
// notification's event.
type WebhookSink struct {
	store      *db.Store
	httpClient *http.Client
}

func NewWebhookSink(store *db.Store, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Name() string {
	return "webhook"
}

func (s *WebhookSink) Deliveries(ctx context.Context, n *Notification) ([]Delivery, error) {
	webhooks, err := s.store.Webhooks.ListActiveWebhooksForEvent(ctx, n.Event)
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(webhooks))
	for _, w := range webhooks {
		webhook := w
		deliveries = append(deliveries, Delivery{
			Target: webhook.URL,
			Send: func(ctx context.Context) error {
				return s.sendRequest(ctx, webhook, n)
			},
		})
	}
	return deliveries, nil
}

func (s *WebhookSink) sendRequest(ctx context.Context, webhook *db.Webhook, n *Notification) error {
	payload := &WebhookPayload{
		Event:     n.Event,
		Timestamp: time.Now().UTC(),
		Data:      n,
	}

	dataBytes, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if webhook.Secret != "" {
		payload.Signature = Sign(dataBytes, webhook.Secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &HTTPError{StatusCode: resp.StatusCode}
	}

	return nil
}

// Test sends a synthetic notification to w whatever it is subscribed to.
func (s *WebhookSink) Test(ctx context.Context, w *db.Webhook) error {
	n := &Notification{
		Event:   EventWebhookTest,
		Title:   "Webhook test",
		Message: fmt.Sprintf("Test delivery for webhook %q", w.Name),
	}
	n.normalize(AudienceAdmin)
	return s.sendRequest(ctx, w, n)
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
