package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/services"
)

func TestPubSubEventPublisherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	orders, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	payments, err := client.CreateTopic(ctx, "payment-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(orders, payments)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	occurredAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	orderEvent := services.OrderEvent{
		Type:           services.OrderEventStatusChanged,
		OrderID:        "ord_test",
		OrderNumber:    "TS-2025-000042",
		UserID:         "7421",
		PreviousStatus: domain.OrderStatusPending,
		CurrentStatus:  domain.OrderStatusProcessing,
		OccurredAt:     occurredAt,
	}
	if err := publisher.PublishOrderEvent(ctx, orderEvent); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	paymentEvent := services.PaymentEvent{
		Type:          services.PaymentEventCompleted,
		TransactionID: "tx_test",
		OrderID:       "ord_test",
		Method:        domain.PaymentMethodCryptoBTC,
		Status:        domain.TransactionStatusCompleted,
		Amount:        2599,
		OccurredAt:    occurredAt,
	}
	if err := publisher.PublishPaymentEvent(ctx, paymentEvent); err != nil {
		t.Fatalf("PublishPaymentEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	var gotOrder services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &gotOrder); err != nil {
		t.Fatalf("unmarshal order payload: %v", err)
	}
	if gotOrder.OrderID != orderEvent.OrderID || gotOrder.CurrentStatus != domain.OrderStatusProcessing {
		t.Fatalf("unexpected order payload %#v", gotOrder)
	}
	if attr := messages[0].Attributes["type"]; attr != services.OrderEventStatusChanged {
		t.Fatalf("expected order type attribute, got %q", attr)
	}

	var gotPayment services.PaymentEvent
	if err := json.Unmarshal(messages[1].Data, &gotPayment); err != nil {
		t.Fatalf("unmarshal payment payload: %v", err)
	}
	if gotPayment.TransactionID != paymentEvent.TransactionID || gotPayment.Amount != 2599 {
		t.Fatalf("unexpected payment payload %#v", gotPayment)
	}
	if attr := messages[1].Attributes["method"]; attr != string(domain.PaymentMethodCryptoBTC) {
		t.Fatalf("expected method attribute, got %q", attr)
	}
}
