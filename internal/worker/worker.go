package worker

import (
	"context"
	"log"

	"bakery-orders/internal/broker"
	"bakery-orders/internal/models"
	"bakery-orders/internal/service"
	"bakery-orders/internal/util"
)

// ReceiptWorker consumes OrderPaid events and sends purchase-receipt emails.
// Mail is best-effort by design: a failed send is logged and the message is
// committed anyway, so a broken SMTP relay can never wedge payment
// reconciliation.
type ReceiptWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	sender       *service.ReceiptSender
}

// NewReceiptWorker creates a new receipt worker
func NewReceiptWorker(consumer *broker.Consumer, sender *service.ReceiptSender) *ReceiptWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderPaid(func(ctx context.Context, event *models.OrderPaidEvent) error {
		if err := sender.SendPurchaseReceipt(event); err != nil {
			util.ReceiptsFailedTotal.Inc()
			log.Printf("Receipt send failed for order %d: %v", event.OrderID, err)
			return nil
		}
		util.ReceiptsSentTotal.Inc()
		return nil
	})

	return &ReceiptWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		sender:       sender,
	}
}

// Start starts the worker
func (w *ReceiptWorker) Start(ctx context.Context) error {
	log.Println("Starting receipt worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReceiptWorker) Stop() error {
	log.Println("Stopping receipt worker...")
	return w.consumer.Close()
}
