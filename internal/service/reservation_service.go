package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/booking"
	"github.com/seyone-projects/reda-backend/internal/database"
	"github.com/seyone-projects/reda-backend/internal/domain"
	"github.com/seyone-projects/reda-backend/internal/events"
	"github.com/seyone-projects/reda-backend/internal/excel"
	"github.com/seyone-projects/reda-backend/internal/metrics"
	"github.com/seyone-projects/reda-backend/internal/models"
	"github.com/seyone-projects/reda-backend/internal/worker"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAlreadyCancelled    = errors.New("reservation already cancelled")
	ErrForbidden           = errors.New("not allowed to change this reservation")
	ErrInvalidQuery        = errors.New("invalid query")
)

type ReservationService struct {
	db        *database.DB
	validator *booking.Validator
	eventBus  domain.EventPublisher
	sync      domain.SyncEnqueuer
	logger    *zerolog.Logger
}

// NewReservationService wires the booking flow. eventBus and sync may be nil.
func NewReservationService(
	db *database.DB,
	validator *booking.Validator,
	eventBus domain.EventPublisher,
	sync domain.SyncEnqueuer,
	logger *zerolog.Logger,
) *ReservationService {
	l := logger.With().Str("component", "reservation_service").Logger()
	return &ReservationService{db: db, validator: validator, eventBus: eventBus, sync: sync, logger: &l}
}

// Validate is a read-only pre-flight check. Nothing is written.
func (s *ReservationService) Validate(ctx context.Context, req models.BookingRequest) (booking.Result, error) {
	res, err := s.validator.Validate(ctx, req)
	if err != nil {
		return booking.Result{}, err
	}
	metrics.IncBookingDecision(string(req.Kind), string(res.Code))
	return res, nil
}

// Book validates and inserts req for userID atomically. A rejection is
// returned as a Result with a nil reservation and a nil error.
func (s *ReservationService) Book(ctx context.Context, req models.BookingRequest, userID int64) (*models.Reservation, booking.Result, error) {
	parsed, bad := s.validator.Parse(req)
	if bad != nil {
		metrics.IncBookingDecision(string(req.Kind), string(bad.Code))
		return nil, *bad, nil
	}

	r, res, err := s.db.CreateReservationWithLock(ctx, s.validator, parsed, userID)
	if err != nil {
		return nil, booking.Result{}, err
	}
	metrics.IncBookingDecision(string(req.Kind), string(res.Code))
	if r == nil {
		return nil, res, nil
	}

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("resource_id", r.ResourceID).
		Str("kind", string(r.Kind)).
		Int64("user_id", userID).
		Msg("Reservation created")

	s.publishEvent(events.EventReservationCreated, r, userID)
	s.enqueueSync(ctx, worker.TaskUpsert, r)
	return r, res, nil
}

// Cancel flips the reservation to cancelled. Residents may only cancel their own.
func (s *ReservationService) Cancel(ctx context.Context, id int64, actor *models.User) (*models.Reservation, error) {
	r, err := s.db.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	if actor != nil && actor.Role == models.RoleUser && r.UserID != actor.ID {
		return nil, ErrForbidden
	}

	if err := s.db.CancelReservation(ctx, id); err != nil {
		switch {
		case errors.Is(err, database.ErrAlreadyCancelled):
			return nil, ErrAlreadyCancelled
		case errors.Is(err, database.ErrNotFound):
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	r.IsCancelled = true
	r.UpdatedAt = time.Now()

	var actorID int64
	if actor != nil {
		actorID = actor.ID
	}
	s.logger.Info().Int64("reservation_id", id).Int64("changed_by", actorID).Msg("Reservation cancelled")

	s.publishEvent(events.EventReservationCancelled, r, actorID)
	s.enqueueSync(ctx, worker.TaskUpdateStatus, r)
	return r, nil
}

// ListQuery selects reservations. Dates accept the request date formats.
type ListQuery struct {
	ResourceID       string
	AssociationID    string
	UserID           int64
	From             string
	To               string
	IncludeCancelled bool
}

func (s *ReservationService) List(ctx context.Context, q ListQuery) ([]*models.Reservation, error) {
	dq, err := s.databaseQuery(q)
	if err != nil {
		return nil, err
	}
	return s.db.ListReservations(ctx, dq)
}

func (s *ReservationService) databaseQuery(q ListQuery) (database.ReservationQuery, error) {
	dq := database.ReservationQuery{
		ResourceID:       q.ResourceID,
		AssociationID:    q.AssociationID,
		UserID:           q.UserID,
		IncludeCancelled: q.IncludeCancelled,
	}
	var err error
	if strings.TrimSpace(q.From) != "" {
		if dq.From, err = booking.NormalizeDate(q.From, s.validator.Location()); err != nil {
			return dq, fmt.Errorf("%w: from: %v", ErrInvalidQuery, err)
		}
	}
	if strings.TrimSpace(q.To) != "" {
		if dq.To, err = booking.NormalizeDate(q.To, s.validator.Location()); err != nil {
			return dq, fmt.Errorf("%w: to: %v", ErrInvalidQuery, err)
		}
	}
	if !dq.From.IsZero() && !dq.To.IsZero() && dq.To.Before(dq.From) {
		return dq, fmt.Errorf("%w: to is before from", ErrInvalidQuery)
	}
	return dq, nil
}

// DayAvailability reports which kinds could still be admitted for the scope.
func (s *ReservationService) DayAvailability(ctx context.Context, resourceID, associationID, date string) (*models.DayAvailability, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, fmt.Errorf("%w: resource_id is required", ErrInvalidQuery)
	}
	day, err := booking.NormalizeDate(date, s.validator.Location())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	scope := booking.Scope{ResourceID: resourceID, AssociationID: associationID, Date: day}

	out := &models.DayAvailability{ResourceID: resourceID, AssociationID: associationID, Date: day}

	whole, err := s.validator.CheckWholeDay(ctx, scope)
	if err != nil {
		return nil, err
	}
	out.WholeDay = whole.Admitted

	morning, err := s.validator.CheckHalfDay(ctx, scope, models.SlotMorning)
	if err != nil {
		return nil, err
	}
	out.Morning = morning.Admitted

	afternoon, err := s.validator.CheckHalfDay(ctx, scope, models.SlotAfternoon)
	if err != nil {
		return nil, err
	}
	out.Afternoon = afternoon.Admitted

	free, err := s.validator.CheckFree(ctx, scope)
	if err != nil {
		return nil, err
	}
	out.Free = free.Admitted

	until, ok, err := s.validator.MaintenanceUntil(ctx, scope)
	if err != nil {
		return nil, err
	}
	if ok {
		out.HourlyFrom = until.String()
	}
	return out, nil
}

// Export writes the reservations of the period, cancelled ones included, as xlsx.
func (s *ReservationService) Export(ctx context.Context, w io.Writer, from, to string) error {
	dq, err := s.databaseQuery(ListQuery{From: from, To: to, IncludeCancelled: true})
	if err != nil {
		return err
	}
	rs, err := s.db.ListReservations(ctx, dq)
	if err != nil {
		return err
	}
	return excel.WriteReservations(w, dq.From, dq.To, rs)
}

func (s *ReservationService) publishEvent(eventType string, r *models.Reservation, changedBy int64) {
	if s.eventBus == nil {
		return
	}
	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		AssociationID: r.AssociationID,
		UserID:        r.UserID,
		Date:          r.BookingDate.Format(booking.DateLayout),
		Kind:          string(r.Kind),
		TimeSlot:      string(r.TimeSlot),
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		ChangedByID:   changedBy,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("reservation_id", r.ID).Msg("Failed to publish event")
	}
}

func (s *ReservationService) enqueueSync(ctx context.Context, taskType string, r *models.Reservation) {
	if s.sync == nil {
		return
	}
	if err := s.sync.EnqueueTask(ctx, taskType, r.ID, r); err != nil {
		s.logger.Error().Err(err).Str("task_type", taskType).Int64("reservation_id", r.ID).Msg("Failed to enqueue sheets sync")
	}
}
