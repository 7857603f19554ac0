package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/domain"
	"github.com/seyone-projects/reda-backend/internal/events"
	"github.com/seyone-projects/reda-backend/internal/models"
)

const (
	msgBookingConfirmed = "Booking confirmed"
	msgBookingCancelled = "Booking cancelled"
	msgWelcome          = "Welcome to Reda"
)

const handlerTimeout = 15 * time.Second

type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Notifier turns domain events into resident SMS and manager alerts.
type Notifier struct {
	sms    domain.SMSSender
	alerts *ManagerAlerts
	users  UserLookup
	logger *zerolog.Logger
}

// NewNotifier accepts a nil sms sender or nil alerts to disable that channel.
func NewNotifier(sms domain.SMSSender, alerts *ManagerAlerts, users UserLookup, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "notifier").Logger()
	return &Notifier{sms: sms, alerts: alerts, users: users, logger: &l}
}

// Register subscribes the notifier to bus. With a non-nil d the handlers run
// on its workers, so publishers never wait on the SMS gateway or Telegram.
func (n *Notifier) Register(bus *events.EventBus, d *events.Dispatcher) {
	bus.Subscribe(events.EventReservationCreated, d.Async(n.onReservation(msgBookingConfirmed, "New booking")))
	bus.Subscribe(events.EventReservationCancelled, d.Async(n.onReservation(msgBookingCancelled, "Booking cancelled")))
	bus.Subscribe(events.EventUserRegistered, d.Async(n.onUserRegistered))
}

func (n *Notifier) onReservation(smsText, alertTitle string) events.EventHandler {
	return func(event *events.Event) error {
		p, err := events.Decode[events.ReservationEventPayload](event)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if n.sms != nil && n.users != nil && p.UserID != 0 {
			user, err := n.users.GetUserByID(ctx, p.UserID)
			if err != nil {
				n.logger.Warn().Err(err).Int64("user_id", p.UserID).Msg("Cannot resolve user for SMS")
			} else {
				n.sendSMS(ctx, user.MobileNumber, smsText)
			}
		}

		if n.alerts != nil {
			_ = n.alerts.Broadcast(reservationAlert(alertTitle, p))
		}
		return nil
	}
}

func (n *Notifier) onUserRegistered(event *events.Event) error {
	p, err := events.Decode[events.UserEventPayload](event)
	if err != nil {
		return err
	}
	if n.sms == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	n.sendSMS(ctx, p.MobileNumber, msgWelcome)
	return nil
}

func (n *Notifier) sendSMS(ctx context.Context, mobile, text string) {
	if err := n.sms.Send(ctx, mobile, text); err != nil {
		n.logger.Error().Err(err).Msg("SMS API error")
	}
}

func reservationAlert(title string, p events.ReservationEventPayload) string {
	when := p.Kind
	switch models.BookingKind(p.Kind) {
	case models.KindHalfDay:
		when = fmt.Sprintf("%s (%s)", p.Kind, p.TimeSlot)
	case models.KindHourly:
		when = fmt.Sprintf("%s %s-%s", p.Kind, p.StartTime, p.EndTime)
	}
	return fmt.Sprintf("%s #%d\nResource: %s\nAssociation: %s\nDate: %s\n%s",
		title, p.ReservationID, p.ResourceID, p.AssociationID, p.Date, when)
}
