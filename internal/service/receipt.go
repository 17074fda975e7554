package service

import (
	"fmt"
	"net/smtp"
	"strings"

	"bakery-orders/internal/models"
	"bakery-orders/internal/util"

	"go.uber.org/zap"
)

// ReceiptSender sends purchase-receipt emails over SMTP. It is strictly
// best-effort: failures are logged and never fail the paid transition.
type ReceiptSender struct {
	host   string
	port   string
	from   string
	logger *zap.Logger
}

// NewReceiptSender creates a new receipt sender
func NewReceiptSender(host, port, from string) *ReceiptSender {
	return &ReceiptSender{
		host:   host,
		port:   port,
		from:   from,
		logger: util.GetLogger(),
	}
}

// SendPurchaseReceipt emails the payer a summary of their paid order
func (s *ReceiptSender) SendPurchaseReceipt(event *models.OrderPaidEvent) error {
	if event.PayerEmail == "" {
		s.logger.Warn("No payer email on paid order, skipping receipt",
			zap.Int64("order_id", event.OrderID))
		return nil
	}

	subject := fmt.Sprintf("Thanks for your order #%d", event.OrderID)
	body := buildReceiptBody(event)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.from, event.PayerEmail, subject, body)

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := smtp.SendMail(addr, nil, s.from, []string{event.PayerEmail}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send receipt for order %d: %w", event.OrderID, err)
	}

	s.logger.Info("Purchase receipt sent",
		zap.Int64("order_id", event.OrderID),
		zap.String("to", event.PayerEmail))
	return nil
}

func buildReceiptBody(event *models.OrderPaidEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your order #%d is confirmed.\r\n\r\n", event.OrderID)
	for _, item := range event.Items {
		fmt.Fprintf(&b, "  %d x %s @ %.2f\r\n", item.Quantity, item.Name, item.UnitPrice)
	}
	fmt.Fprintf(&b, "\r\nTotal paid: %s\r\n", event.PricePaid)
	b.WriteString("\r\nWe'll let you know when it's on its way.\r\n")
	return b.String()
}
