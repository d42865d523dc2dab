package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes every notification to a topic exchange under
// notification.<audience>.<type>.
type AMQPSink struct {
	publisher Publisher
	exchange  string
}

func NewAMQPSink(conn *amqp.Connection, exchange string) (*AMQPSink, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPSink{publisher: ch, exchange: exchange}, nil
}

func NewAMQPSinkWithPublisher(p Publisher, exchange string) *AMQPSink {
	return &AMQPSink{publisher: p, exchange: exchange}
}

func (s *AMQPSink) Name() string {
	return "amqp"
}

func RoutingKey(n *Notification) string {
	return "notification." + n.Audience + "." + n.Type
}

func (s *AMQPSink) Deliveries(_ context.Context, n *Notification) ([]Delivery, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	key := RoutingKey(n)

	return []Delivery{{
		Target: s.exchange + "/" + key,
		Send: func(ctx context.Context) error {
			return s.publisher.PublishWithContext(ctx,
				s.exchange,
				key,
				false,
				false,
				amqp.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp.Persistent,
					MessageId:    n.ID,
					Timestamp:    n.CreatedAt,
					Type:         n.Event,
					Body:         body,
				},
			)
		},
	}}, nil
}
