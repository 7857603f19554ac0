package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/models"
)

const DefaultMaintenanceBuffer = 30 * time.Minute

type Options struct {
	// MaintenanceBuffer is the idle time required after the latest timed booking.
	MaintenanceBuffer time.Duration
	// Location decides the calendar day of timestamped request dates.
	Location *time.Location
}

// Validator decides whether a booking request may be admitted against the
// active reservations of its scope. It holds no state and never writes.
type Validator struct {
	store  Store
	free   FreeBookingChecker
	opts   Options
	logger *zerolog.Logger
}

// NewValidator wires a validator. A nil free checker falls back to the store.
func NewValidator(store Store, free FreeBookingChecker, opts Options, logger *zerolog.Logger) *Validator {
	if free == nil {
		free = StoreFreeChecker{Store: store}
	}
	if opts.MaintenanceBuffer <= 0 {
		opts.MaintenanceBuffer = DefaultMaintenanceBuffer
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "booking_validator").Logger()
	return &Validator{store: store, free: free, opts: opts, logger: &l}
}

// WithStore returns a copy of v reading from store, e.g. a transaction-bound one.
func (v *Validator) WithStore(store Store, free FreeBookingChecker) *Validator {
	if free == nil {
		free = StoreFreeChecker{Store: store}
	}
	return &Validator{store: store, free: free, opts: v.opts, logger: v.logger}
}

// Request is a parsed and normalized BookingRequest.
type Request struct {
	Scope
	Kind  models.BookingKind
	Slot  models.TimeSlot
	Range TimeRange
}

// Parse normalizes req. A non-nil Result is an input rejection; no store query is made.
func (v *Validator) Parse(req models.BookingRequest) (Request, *Result) {
	if strings.TrimSpace(req.ResourceID) == "" || strings.TrimSpace(req.BookingDate) == "" || req.Kind == "" {
		r := reject(CodeMissingFields, MsgMissingFields)
		return Request{}, &r
	}
	if !req.Kind.Valid() {
		r := reject(CodeInvalidInput, fmt.Sprintf("Unknown booking kind %q", req.Kind))
		return Request{}, &r
	}
	date, err := NormalizeDate(req.BookingDate, v.opts.Location)
	if err != nil {
		r := reject(CodeInvalidInput, "Invalid booking date")
		return Request{}, &r
	}

	out := Request{
		Scope: Scope{ResourceID: req.ResourceID, AssociationID: req.AssociationID, Date: date},
		Kind:  req.Kind,
	}

	switch req.Kind {
	case models.KindHalfDay:
		if req.TimeSlot != "" && !req.TimeSlot.Valid() {
			r := reject(CodeInvalidInput, fmt.Sprintf("Unknown time slot %q", req.TimeSlot))
			return Request{}, &r
		}
		out.Slot = req.TimeSlot
	case models.KindHourly:
		if req.StartTime == "" || req.EndTime == "" {
			r := reject(CodeMissingTimes, MsgMissingTimes)
			return Request{}, &r
		}
		rng, err := ParseRange(req.StartTime, req.EndTime)
		if err != nil {
			r := reject(CodeInvalidInput, "Invalid time range: "+err.Error())
			return Request{}, &r
		}
		out.Range = rng
	}
	return out, nil
}

// Validate is the top-level entry point. Store failures are returned as errors
// and never turned into a Result.
func (v *Validator) Validate(ctx context.Context, req models.BookingRequest) (Result, error) {
	parsed, bad := v.Parse(req)
	if bad != nil {
		v.logger.Debug().Str("code", string(bad.Code)).Msg("Booking request rejected on input")
		return *bad, nil
	}
	return v.ValidateParsed(ctx, parsed)
}

// ValidateParsed dispatches an already parsed request to its kind's check.
func (v *Validator) ValidateParsed(ctx context.Context, req Request) (Result, error) {
	var (
		res Result
		err error
	)
	switch req.Kind {
	case models.KindWholeDay:
		res, err = v.CheckWholeDay(ctx, req.Scope)
	case models.KindHalfDay:
		res, err = v.CheckHalfDay(ctx, req.Scope, req.Slot)
	case models.KindHourly:
		res, err = v.CheckHourly(ctx, req.Scope, req.Range)
	case models.KindFree:
		res, err = v.CheckFree(ctx, req.Scope)
	default:
		return reject(CodeInvalidInput, fmt.Sprintf("Unknown booking kind %q", req.Kind)), nil
	}
	if err != nil {
		return Result{}, err
	}

	v.logger.Debug().
		Str("resource_id", req.ResourceID).
		Str("association_id", req.AssociationID).
		Str("date", req.Date.Format(DateLayout)).
		Str("kind", string(req.Kind)).
		Bool("admitted", res.Admitted).
		Str("code", string(res.Code)).
		Msg("Booking request validated")
	return res, nil
}

// CheckWholeDay rejects when a half-day carve-out or another whole-day booking exists.
func (v *Validator) CheckWholeDay(ctx context.Context, scope Scope) (Result, error) {
	carved, err := v.HalfDayCarveOutExists(ctx, scope)
	if err != nil {
		return Result{}, err
	}
	if carved {
		return reject(CodeWholeDayBlockedByHalf, MsgWholeDayBlockedByHalf), nil
	}

	exists, err := v.WholeDayExists(ctx, scope)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return reject(CodeWholeDayBooked, MsgWholeDayBooked), nil
	}
	return admit(), nil
}

// CheckHalfDay rejects when the day is taken whole, or when slot is already occupied.
func (v *Validator) CheckHalfDay(ctx context.Context, scope Scope, slot models.TimeSlot) (Result, error) {
	exists, err := v.WholeDayExists(ctx, scope)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return reject(CodeDayBooked, MsgDayBooked), nil
	}

	if slot != "" {
		taken, err := v.SlotTaken(ctx, scope, slot)
		if err != nil {
			return Result{}, err
		}
		if taken {
			return reject(CodeSlotTaken, MsgSlotTaken), nil
		}
	}
	return admit(), nil
}

// CheckHourly runs overlap and maintenance, then half-day, then the hourly-only overlap gate.
func (v *Validator) CheckHourly(ctx context.Context, scope Scope, rng TimeRange) (Result, error) {
	conflict, err := v.HourlyConflict(ctx, scope, rng)
	if err != nil {
		return Result{}, err
	}
	if conflict != nil {
		if conflict.Cause == CauseMaintenance {
			res := reject(CodeHourlyMaintenance, maintenanceMessage(conflict.MaintenanceUntil))
			res.Cause = CauseMaintenance
			res.AvailableFrom = conflict.MaintenanceUntil.String()
			return res, nil
		}
		res := reject(CodeHourlyBooked, MsgHourlyBooked)
		res.Cause = CauseBusy
		return res, nil
	}

	halfDay, err := v.ConflictsWithHalfDay(ctx, scope, rng.Start)
	if err != nil {
		return Result{}, err
	}
	if halfDay {
		res := reject(CodeHourlyHalfDay, MsgHourlyHalfDay)
		res.Cause = CauseBusy
		return res, nil
	}

	overlap, err := v.OverlapsHourly(ctx, scope, rng)
	if err != nil {
		return Result{}, err
	}
	if overlap {
		res := reject(CodeHourlyOverlap, MsgHourlyOverlap)
		res.Cause = CauseBusy
		return res, nil
	}
	return admit(), nil
}

// CheckFree allows at most one free booking per scope.
func (v *Validator) CheckFree(ctx context.Context, scope Scope) (Result, error) {
	exists, err := v.FreeBookingExists(ctx, scope)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return reject(CodeFreeExists, MsgDayBooked), nil
	}
	return admit(), nil
}

// HalfDayCarveOutExists reports an active Morning or Afternoon reservation.
func (v *Validator) HalfDayCarveOutExists(ctx context.Context, scope Scope) (bool, error) {
	return v.exists(ctx, Filter{
		Scope: scope,
		Slots: []models.TimeSlot{models.SlotMorning, models.SlotAfternoon},
	})
}

// WholeDayExists reports an active WholeDay reservation.
func (v *Validator) WholeDayExists(ctx context.Context, scope Scope) (bool, error) {
	return v.exists(ctx, Filter{
		Scope: scope,
		Kinds: []models.BookingKind{models.KindWholeDay},
	})
}

// SlotTaken reports an active reservation holding slot.
func (v *Validator) SlotTaken(ctx context.Context, scope Scope, slot models.TimeSlot) (bool, error) {
	return v.exists(ctx, Filter{
		Scope: scope,
		Slots: []models.TimeSlot{slot},
	})
}

// Conflict describes why an hourly range cannot be admitted.
type Conflict struct {
	Cause Cause
	// Reservation is the overlapping booking, or the latest-ending one for maintenance.
	Reservation *models.Reservation
	// MaintenanceUntil is set when Cause is CauseMaintenance.
	MaintenanceUntil Clock
}

// HourlyConflict checks rng against every timed reservation: direct overlap
// first, then the maintenance window after the latest-ending one.
func (v *Validator) HourlyConflict(ctx context.Context, scope Scope, rng TimeRange) (*Conflict, error) {
	overlapping, err := v.store.FindOne(ctx, Filter{Scope: scope, Timed: true, Overlapping: &rng})
	if err != nil {
		return nil, fmt.Errorf("find overlapping reservation: %w", err)
	}
	if overlapping != nil {
		return &Conflict{Cause: CauseBusy, Reservation: overlapping}, nil
	}

	last, err := v.store.FindLatestEnding(ctx, Filter{Scope: scope, Timed: true})
	if err != nil {
		return nil, fmt.Errorf("find latest reservation: %w", err)
	}
	if last == nil {
		return nil, nil
	}
	lastEnd, err := ParseClock(last.EndTime)
	if err != nil {
		v.logger.Warn().Err(err).Int64("reservation_id", last.ID).Msg("Skipping maintenance check for malformed end time")
		return nil, nil
	}
	maintenanceEnd := lastEnd.Add(v.opts.MaintenanceBuffer)
	if rng.Start >= lastEnd && rng.Start < maintenanceEnd {
		return &Conflict{Cause: CauseMaintenance, Reservation: last, MaintenanceUntil: maintenanceEnd}, nil
	}
	return nil, nil
}

// ConflictsWithHalfDay reports whether start falls inside a booked half-day slot.
func (v *Validator) ConflictsWithHalfDay(ctx context.Context, scope Scope, start Clock) (bool, error) {
	for _, slot := range []models.TimeSlot{models.SlotMorning, models.SlotAfternoon} {
		rng, _ := RangeForSlot(slot)
		if !rng.Contains(start) {
			continue
		}
		taken, err := v.SlotTaken(ctx, scope, slot)
		if err != nil {
			return false, err
		}
		if taken {
			return true, nil
		}
	}
	return false, nil
}

// OverlapsHourly reports an active Hourly-kind reservation overlapping rng.
func (v *Validator) OverlapsHourly(ctx context.Context, scope Scope, rng TimeRange) (bool, error) {
	return v.exists(ctx, Filter{
		Scope:       scope,
		Kinds:       []models.BookingKind{models.KindHourly},
		Overlapping: &rng,
	})
}

// FreeBookingExists delegates to the free-booking checker.
func (v *Validator) FreeBookingExists(ctx context.Context, scope Scope) (bool, error) {
	ok, err := v.free.FreeBookingExists(ctx, scope.ResourceID, scope.AssociationID, scope.Date)
	if err != nil {
		return false, fmt.Errorf("check free booking: %w", err)
	}
	return ok, nil
}

func (v *Validator) exists(ctx context.Context, f Filter) (bool, error) {
	r, err := v.store.FindOne(ctx, f)
	if err != nil {
		return false, fmt.Errorf("find reservation: %w", err)
	}
	return r != nil, nil
}

// MaintenanceUntil returns the end of the maintenance window that follows the
// latest-ending timed reservation of scope. ok is false when there is none.
func (v *Validator) MaintenanceUntil(ctx context.Context, scope Scope) (until Clock, ok bool, err error) {
	last, err := v.store.FindLatestEnding(ctx, Filter{Scope: scope, Timed: true})
	if err != nil {
		return 0, false, fmt.Errorf("find latest reservation: %w", err)
	}
	if last == nil {
		return 0, false, nil
	}
	lastEnd, err := ParseClock(last.EndTime)
	if err != nil {
		return 0, false, nil
	}
	return lastEnd.Add(v.opts.MaintenanceBuffer), true, nil
}

// Location is the zone used to read timestamped request dates.
func (v *Validator) Location() *time.Location {
	return v.opts.Location
}
