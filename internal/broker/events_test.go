package broker

import (
	"context"
	"encoding/json"
	"testing"

	"bakery-orders/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesOrderPaid(t *testing.T) {
	handler := NewEventHandler()

	var received *models.OrderPaidEvent
	handler.OnOrderPaid(func(ctx context.Context, event *models.OrderPaidEvent) error {
		received = event
		return nil
	})

	event := models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderPaid,
		},
		OrderID:    7,
		PayerEmail: "jane@example.com",
		PricePaid:  "200.00",
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: value})

	require.NoError(t, err)
	require.NotNil(t, received)
	assert.Equal(t, int64(7), received.OrderID)
	assert.Equal(t, "200.00", received.PricePaid)
}

func TestHandleMessageIgnoresUnregisteredType(t *testing.T) {
	handler := NewEventHandler()

	event := models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeOrderCreated},
		OrderID:   7,
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: value})
	assert.NoError(t, err)
}

func TestHandleMessageMalformedPayload(t *testing.T) {
	handler := NewEventHandler()

	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("not-json")})
	assert.Error(t, err)
}
