package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/teleshop/bot/internal/services"
)

// PubSubEventPublisher publishes order and payment lifecycle events to their
// Pub/Sub topics.
type PubSubEventPublisher struct {
	orders   *pubsub.Topic
	payments *pubsub.Topic
	marshal  func(any) ([]byte, error)
}

var _ services.EventPublisher = (*PubSubEventPublisher)(nil)

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(orders, payments *pubsub.Topic) (*PubSubEventPublisher, error) {
	if orders == nil || payments == nil {
		return nil, errors.New("pubsub event publisher: both topics are required")
	}
	return &PubSubEventPublisher{
		orders:   orders,
		payments: payments,
		marshal:  json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues the event on the order topic.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.orders == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "status", string(event.CurrentStatus))

	result := p.orders.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishPaymentEvent enqueues the event on the payment topic.
func (p *PubSubEventPublisher) PublishPaymentEvent(ctx context.Context, event services.PaymentEvent) error {
	if p == nil || p.payments == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "transactionId", event.TransactionID)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "method", string(event.Method))
	setAttr(attrs, "status", string(event.Status))

	result := p.payments.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish payment event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
