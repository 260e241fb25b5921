package notify

import (
	"context"
	"fmt"

	"github.com/wfsantos/agendabot/pkg/logging"
)

// Confirmation is the booking summary delivered by email when WhatsApp
// delivery fails.
type Confirmation struct {
	TenantName   string
	ToEmail      string
	CustomerName string
	Phone        string
	ServiceName  string
	Date         string // dd/mm/yyyy
	Time         string
	BookingID    string
}

// Service sends booking confirmations through a primary sender, falling back
// to a secondary one when the primary fails. Either sender may be nil.
type Service struct {
	primary  EmailSender
	fallback EmailSender
	logger   *logging.Logger
}

// NewService creates a notification service.
func NewService(primary, fallback EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// BookingConfirmed emails the booking summary to the tenant's contact
// address. It returns an error only when every configured sender fails.
func (s *Service) BookingConfirmed(ctx context.Context, c Confirmation) error {
	if c.ToEmail == "" {
		s.logger.Debug("notify: no contact email configured, skipping", "booking_id", c.BookingID)
		return nil
	}

	msg := EmailMessage{
		To:      c.ToEmail,
		Subject: fmt.Sprintf("Agendamento confirmado: %s", c.CustomerName),
		Body: fmt.Sprintf(`Novo agendamento confirmado!

Cliente: %s
Telefone: %s
Serviço: %s
Data: %s
Horário: %s
Reserva: %s

A mensagem de confirmação pelo WhatsApp não pôde ser entregue; avise o cliente por outro canal se possível.

-- %s`, c.CustomerName, c.Phone, c.ServiceName, c.Date, c.Time, c.BookingID, c.TenantName),
	}

	var firstErr error
	for _, sender := range []EmailSender{s.primary, s.fallback} {
		if sender == nil {
			continue
		}
		if err := sender.Send(ctx, msg); err != nil {
			s.logger.Warn("confirmation email sender failed", "error", err, "to", c.ToEmail)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return nil
	}
	if firstErr == nil {
		s.logger.Debug("notify: no email sender configured, skipping", "booking_id", c.BookingID)
		return nil
	}
	return fmt.Errorf("notify: booking confirmation email failed: %w", firstErr)
}
