package service

import (
	"fmt"
	"strings"

	"olympspa/internal/events"
	"olympspa/internal/interval"

	"github.com/rs/zerolog"
)

// AlertNotifier forwards reconciliation failures that need a human (paid
// conflicts and unusable paid events) to the operators' Telegram chats.
type AlertNotifier struct {
	telegram *TelegramService
	logger   *zerolog.Logger
}

func NewAlertNotifier(telegram *TelegramService, logger *zerolog.Logger) *AlertNotifier {
	return &AlertNotifier{
		telegram: telegram,
		logger:   logger,
	}
}

// Subscribe attaches the notifier to the event types it reports.
func (n *AlertNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventReservationConflict, n.Handle)
	bus.Subscribe(events.EventConfirmationRejected, n.Handle)
}

func (n *AlertNotifier) Handle(event *events.Event) error {
	var payload events.ReservationEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	if err := n.telegram.Broadcast(FormatAlert(event.Type, payload)); err != nil {
		n.logger.Error().Err(err).Str("event_type", event.Type).Str("session_id", payload.SessionID).Msg("telegram alert failed")
		return err
	}
	return nil
}

// FormatAlert renders the Markdown message for an alert event.
func FormatAlert(eventType string, p events.ReservationEventPayload) string {
	var b strings.Builder
	switch eventType {
	case events.EventReservationConflict:
		b.WriteString("*Pagamento sem reserva: conflito de datas*\n")
		b.WriteString("O período já foi confirmado por outro pagamento. Reembolso manual necessário.\n")
	case events.EventConfirmationRejected:
		b.WriteString("*Pagamento sem reserva: metadados inválidos*\n")
	default:
		fmt.Fprintf(&b, "*%s*\n", eventType)
	}

	fmt.Fprintf(&b, "Sessão: `%s`\n", p.SessionID)
	if p.EventID != "" {
		fmt.Fprintf(&b, "Evento: `%s`\n", p.EventID)
	}
	if !p.From.IsZero() && !p.To.IsZero() {
		fmt.Fprintf(&b, "Check-in: %s\nCheck-out: %s\n", interval.Format(p.From), interval.Format(p.To))
	}
	if p.Guests > 0 {
		fmt.Fprintf(&b, "Hóspedes: %d\n", p.Guests)
	}
	if p.Reason != "" {
		fmt.Fprintf(&b, "Motivo: %s\n", p.Reason)
	}
	return b.String()
}
