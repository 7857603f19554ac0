package booking

import (
	"context"
	"slices"
	"time"

	"github.com/seyone-projects/reda-backend/internal/models"
)

// Scope identifies the reservations that can conflict with each other:
// one resource of one association on one calendar day.
type Scope struct {
	ResourceID    string
	AssociationID string
	Date          time.Time
}

// Filter selects active reservations inside a Scope.
// Cancelled reservations never match. Zero-valued optional fields are ignored.
type Filter struct {
	Scope

	Kinds []models.BookingKind
	Slots []models.TimeSlot
	// Timed restricts to reservations with both start and end times set.
	Timed bool
	// Overlapping restricts to timed reservations whose interval overlaps it.
	Overlapping *TimeRange
}

// Matches evaluates f against r in memory. Store implementations must agree with it.
func (f Filter) Matches(r *models.Reservation) bool {
	if r == nil || r.IsCancelled {
		return false
	}
	if r.ResourceID != f.ResourceID || r.AssociationID != f.AssociationID {
		return false
	}
	startOfDay, endOfDay := DayBounds(f.Date)
	if r.BookingDate.Before(startOfDay) || r.BookingDate.After(endOfDay) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, r.Kind) {
		return false
	}
	if len(f.Slots) > 0 && !slices.Contains(f.Slots, r.TimeSlot) {
		return false
	}
	if (f.Timed || f.Overlapping != nil) && !r.Timed() {
		return false
	}
	if f.Overlapping != nil {
		rng, err := ReservationRange(r)
		if err != nil {
			return false
		}
		// existing.start < requested.end && existing.end > requested.start
		if !(rng.Start < f.Overlapping.End && rng.End > f.Overlapping.Start) {
			return false
		}
	}
	return true
}

// ReservationRange returns the explicit interval of a timed reservation.
func ReservationRange(r *models.Reservation) (TimeRange, error) {
	s, err := ParseClock(r.StartTime)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseClock(r.EndTime)
	if err != nil {
		return TimeRange{}, err
	}
	return TimeRange{Start: s, End: e}, nil
}

// Store is the read side of reservation persistence used by the validator.
// Both methods return (nil, nil) when nothing matches.
type Store interface {
	FindOne(ctx context.Context, f Filter) (*models.Reservation, error)
	// FindLatestEnding returns the match with the greatest end time.
	FindLatestEnding(ctx context.Context, f Filter) (*models.Reservation, error)
}

// FreeBookingChecker reports whether a free reservation already exists.
type FreeBookingChecker interface {
	FreeBookingExists(ctx context.Context, resourceID, associationID string, date time.Time) (bool, error)
}

// StoreFreeChecker answers free-booking existence from a Store.
type StoreFreeChecker struct {
	Store Store
}

func (c StoreFreeChecker) FreeBookingExists(ctx context.Context, resourceID, associationID string, date time.Time) (bool, error) {
	r, err := c.Store.FindOne(ctx, Filter{
		Scope: Scope{ResourceID: resourceID, AssociationID: associationID, Date: date},
		Kinds: []models.BookingKind{models.KindFree},
	})
	if err != nil {
		return false, err
	}
	return r != nil, nil
}
