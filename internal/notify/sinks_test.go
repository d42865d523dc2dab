package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/printfarm/internal/db"
)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return db.NewStore(conn)
}

func TestWebhookSinkSignsPayload(t *testing.T) {
	type received struct {
		header http.Header
		body   []byte
	}
	got := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{header: r.Header, body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Webhooks.CreateWebhook(ctx, &db.Webhook{
		Name: "ops", URL: server.URL, Secret: "s3cret", EventsJSON: `["job.status_changed"]`, Enabled: true,
	}))
	require.NoError(t, store.Webhooks.CreateWebhook(ctx, &db.Webhook{
		Name: "other", URL: server.URL, EventsJSON: `["queue.created"]`, Enabled: true,
	}))

	sink := NewWebhookSink(store, 0)
	n := &Notification{ID: "n-1", Event: EventJobStatusChanged, Title: "Print failed", Type: TypeError}

	deliveries, err := sink.Deliveries(ctx, n)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.NoError(t, deliveries[0].Send(ctx))

	r := <-got
	assert.Equal(t, EventJobStatusChanged, r.header.Get("X-Webhook-Event"))

	var payload struct {
		Event     string          `json:"event"`
		Data      json.RawMessage `json:"data"`
		Signature string          `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(r.body, &payload))
	assert.Equal(t, Sign(payload.Data, "s3cret"), payload.Signature)
	assert.Equal(t, payload.Signature, r.header.Get("X-Webhook-Signature"))
}

func TestWebhookSinkReportsHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Webhooks.CreateWebhook(ctx, &db.Webhook{
		Name: "gone", URL: server.URL, EventsJSON: `["queue.created"]`, Enabled: true,
	}))

	deliveries, err := NewWebhookSink(store, 0).Deliveries(ctx, &Notification{Event: EventQueueCreated})
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	err = deliveries[0].Send(ctx)
	require.Error(t, err)
	assert.True(t, isClientError(err))
}

func TestWebhookSinkTestIgnoresSubscriptions(t *testing.T) {
	events := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		events <- r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := &db.Webhook{Name: "ops", URL: server.URL, EventsJSON: `["queue.created"]`}
	require.NoError(t, NewWebhookSink(newTestStore(t), 0).Test(context.Background(), w))
	assert.Equal(t, EventWebhookTest, <-events)
}

func TestValidEvent(t *testing.T) {
	assert.True(t, ValidEvent(EventJobStatusChanged))
	assert.False(t, ValidEvent(EventWebhookTest))
	assert.False(t, ValidEvent("printer.exploded"))
}

func TestStoreSinkWritesInbox(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n := &Notification{Event: EventQueueCreated, UserID: 7, Title: "Queued", Message: "m", RelatedType: "print_queue", RelatedID: 3}
	n.normalize(AudienceCustomer)

	deliveries, err := NewStoreSink(store).Deliveries(ctx, n)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.NoError(t, deliveries[0].Send(ctx))

	inbox, err := store.Notifications.ListByUser(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Queued", inbox[0].Title)
	assert.Equal(t, "unread", inbox[0].Status)
	require.NotNil(t, inbox[0].RelatedID)
	assert.Equal(t, int64(3), *inbox[0].RelatedID)
}

type fakePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return nil
}

func TestAMQPSinkRoutingKey(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSinkWithPublisher(pub, "printfarm.notifications")

	n := &Notification{Event: EventPrintStatusChanged, Type: TypeSuccess}
	n.normalize(AudienceAdmin)

	deliveries, err := sink.Deliveries(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.NoError(t, deliveries[0].Send(context.Background()))

	assert.Equal(t, "printfarm.notifications", pub.exchange)
	assert.Equal(t, "notification.admin.success", pub.key)
	assert.Equal(t, EventPrintStatusChanged, pub.msg.Type)
	assert.Equal(t, "application/json", pub.msg.ContentType)
}
