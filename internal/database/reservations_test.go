package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seyone-projects/reda-backend/internal/booking"
	"github.com/seyone-projects/reda-backend/internal/models"
)

var testDay = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func newValidator() *booking.Validator {
	logger := zerolog.Nop()
	return booking.NewValidator(nil, nil, booking.Options{}, &logger)
}

func seed(t *testing.T, db *DB, rs ...*models.Reservation) {
	t.Helper()
	for _, r := range rs {
		if r.ResourceID == "" {
			r.ResourceID = "hall"
		}
		if r.AssociationID == "" {
			r.AssociationID = "assoc"
		}
		if r.BookingDate.IsZero() {
			r.BookingDate = testDay
		}
		require.NoError(t, db.CreateReservation(context.Background(), r))
	}
}

func scopeOf(date time.Time) booking.Scope {
	return booking.Scope{ResourceID: "hall", AssociationID: "assoc", Date: date}
}

func TestReservationStore_FindOneAgreesWithMatches(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	fixtures := []*models.Reservation{
		{Kind: models.KindHourly, StartTime: "10:00", EndTime: "11:00"},
		{Kind: models.KindHalfDay, TimeSlot: models.SlotAfternoon},
		{Kind: models.KindFree},
		{Kind: models.KindWholeDay, BookingDate: testDay.AddDate(0, 0, 1)},
		{Kind: models.KindWholeDay, AssociationID: "other"},
		{Kind: models.KindHourly, StartTime: "15:00", EndTime: "16:00"},
	}
	seed(t, db, fixtures...)
	require.NoError(t, db.CancelReservation(ctx, fixtures[5].ID))
	fixtures[5].IsCancelled = true

	overlap := booking.TimeRange{Start: booking.MustClock("10:30"), End: booking.MustClock("12:00")}
	late := booking.TimeRange{Start: booking.MustClock("15:00"), End: booking.MustClock("16:00")}

	filters := map[string]booking.Filter{
		"Scope":              {Scope: scopeOf(testDay)},
		"WholeDay":           {Scope: scopeOf(testDay), Kinds: []models.BookingKind{models.KindWholeDay}},
		"WholeDayNextDay":    {Scope: scopeOf(testDay.AddDate(0, 0, 1)), Kinds: []models.BookingKind{models.KindWholeDay}},
		"Afternoon":          {Scope: scopeOf(testDay), Slots: []models.TimeSlot{models.SlotAfternoon}},
		"Morning":            {Scope: scopeOf(testDay), Slots: []models.TimeSlot{models.SlotMorning}},
		"BothSlots":          {Scope: scopeOf(testDay), Slots: []models.TimeSlot{models.SlotMorning, models.SlotAfternoon}},
		"Timed":              {Scope: scopeOf(testDay), Timed: true},
		"Overlapping":        {Scope: scopeOf(testDay), Timed: true, Overlapping: &overlap},
		"CancelledNoMatch":   {Scope: scopeOf(testDay), Overlapping: &late},
		"HourlyOverlapping":  {Scope: scopeOf(testDay), Kinds: []models.BookingKind{models.KindHourly}, Overlapping: &overlap},
		"FreeKind":           {Scope: scopeOf(testDay), Kinds: []models.BookingKind{models.KindFree}},
		"EmptyDay":           {Scope: scopeOf(testDay.AddDate(0, 0, 7))},
		"TimestampScopeDate": {Scope: scopeOf(testDay.Add(15 * time.Hour)), Kinds: []models.BookingKind{models.KindFree}},
	}

	store := db.Reservations()
	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			var want *models.Reservation
			for _, r := range fixtures {
				if f.Matches(r) {
					want = r
					break
				}
			}

			got, err := store.FindOne(ctx, f)
			require.NoError(t, err)
			if want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, want.ID, got.ID)
		})
	}
}

func TestCreateReservation_NormalizesTimes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := &models.Reservation{
		ResourceID: "hall", AssociationID: "assoc", BookingDate: testDay,
		Kind: models.KindHourly, StartTime: "9:00", EndTime: "9:45",
	}
	require.NoError(t, db.CreateReservation(ctx, r))
	assert.Equal(t, "09:00", r.StartTime)
	assert.Equal(t, "09:45", r.EndTime)

	// Text comparison in the overlap query only works on padded values.
	window := booking.TimeRange{Start: booking.MustClock("09:30"), End: booking.MustClock("10:00")}
	got, err := db.Reservations().FindOne(ctx, booking.Filter{Scope: scopeOf(testDay), Overlapping: &window})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)

	for _, bad := range []string{"+9:00", "9", "25:00"} {
		err := db.CreateReservation(ctx, &models.Reservation{
			ResourceID: "hall", AssociationID: "assoc", BookingDate: testDay,
			Kind: models.KindHourly, StartTime: bad, EndTime: "11:00",
		})
		assert.Error(t, err, bad)
	}
}

func TestReservationStore_FindLatestEnding(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed(t, db,
		&models.Reservation{Kind: models.KindHourly, StartTime: "14:00", EndTime: "15:00"},
		&models.Reservation{Kind: models.KindHourly, StartTime: "09:00", EndTime: "10:00"},
		&models.Reservation{Kind: models.KindHalfDay, TimeSlot: models.SlotMorning},
	)

	got, err := db.Reservations().FindLatestEnding(ctx, booking.Filter{Scope: scopeOf(testDay), Timed: true})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "15:00", got.EndTime)

	got, err = db.Reservations().FindLatestEnding(ctx, booking.Filter{Scope: scopeOf(testDay.AddDate(0, 0, 1)), Timed: true})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReservationStore_FreeBookingExists(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := db.Reservations()

	exists, err := store.FreeBookingExists(ctx, "hall", "assoc", testDay)
	require.NoError(t, err)
	assert.False(t, exists)

	seed(t, db, &models.Reservation{Kind: models.KindFree})

	exists, err = store.FreeBookingExists(ctx, "hall", "assoc", testDay)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.FreeBookingExists(ctx, "hall", "other", testDay)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateReservationWithLock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := newValidator()

	parse := func(req models.BookingRequest) booking.Request {
		req.ResourceID, req.AssociationID, req.BookingDate = "hall", "assoc", "2024-05-10"
		parsed, bad := v.Parse(req)
		require.Nil(t, bad)
		return parsed
	}

	r, res, err := db.CreateReservationWithLock(ctx, v, parse(models.BookingRequest{
		Kind: models.KindHourly, StartTime: "9:00", EndTime: "10:00",
	}), 42)
	require.NoError(t, err)
	require.True(t, res.Admitted)
	require.NotNil(t, r)
	assert.NotZero(t, r.ID)
	assert.Equal(t, "09:00", r.StartTime)
	assert.Equal(t, int64(42), r.UserID)

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, testDay, stored.BookingDate)
	assert.Equal(t, models.KindHourly, stored.Kind)
	assert.False(t, stored.IsCancelled)

	t.Run("RejectedWritesNothing", func(t *testing.T) {
		r, res, err := db.CreateReservationWithLock(ctx, v, parse(models.BookingRequest{
			Kind: models.KindHourly, StartTime: "10:00", EndTime: "11:00",
		}), 42)
		require.NoError(t, err)
		assert.Nil(t, r)
		assert.False(t, res.Admitted)
		assert.Equal(t, booking.CodeHourlyMaintenance, res.Code)
		assert.Equal(t, "10:30", res.AvailableFrom)

		all, err := db.ListReservations(ctx, ReservationQuery{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("HalfDayThenWholeDay", func(t *testing.T) {
		_, res, err := db.CreateReservationWithLock(ctx, v, parse(models.BookingRequest{
			Kind: models.KindHalfDay, TimeSlot: models.SlotAfternoon,
		}), 7)
		require.NoError(t, err)
		require.True(t, res.Admitted)

		_, res, err = db.CreateReservationWithLock(ctx, v, parse(models.BookingRequest{Kind: models.KindWholeDay}), 7)
		require.NoError(t, err)
		assert.Equal(t, booking.CodeWholeDayBlockedByHalf, res.Code)
	})
}

func TestConcurrentWholeDayBooking(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	v := newValidator()
	req, bad := v.Parse(models.BookingRequest{
		ResourceID: "hall", AssociationID: "assoc", BookingDate: "2024-05-10", Kind: models.KindWholeDay,
	})
	require.Nil(t, bad)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	type outcome struct {
		admitted bool
		err      error
	}
	results := make(chan outcome, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			_, res, err := db.CreateReservationWithLock(ctx, v, req, int64(id))
			results <- outcome{admitted: res.Admitted, err: err}
		}(i)
	}

	wg.Wait()
	close(results)

	admitted := 0
	for o := range results {
		require.NoError(t, o.err)
		if o.admitted {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted, "exactly one whole-day booking may win")

	all, err := db.ListReservations(ctx, ReservationQuery{ResourceID: "hall"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCancelReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := &models.Reservation{Kind: models.KindWholeDay}
	seed(t, db, r)

	require.NoError(t, db.CancelReservation(ctx, r.ID))
	assert.ErrorIs(t, db.CancelReservation(ctx, r.ID), ErrAlreadyCancelled)
	assert.ErrorIs(t, db.CancelReservation(ctx, 9999), ErrNotFound)

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCancelled)

	_, err = db.GetReservation(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListReservations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed(t, db,
		&models.Reservation{Kind: models.KindHourly, StartTime: "14:00", EndTime: "15:00", UserID: 1},
		&models.Reservation{Kind: models.KindHourly, StartTime: "09:00", EndTime: "10:00", UserID: 2},
		&models.Reservation{Kind: models.KindWholeDay, BookingDate: testDay.AddDate(0, 0, 3), UserID: 1},
		&models.Reservation{Kind: models.KindFree, ResourceID: "pool", BookingDate: testDay.AddDate(0, 0, 1), UserID: 1},
	)

	all, err := db.ListReservations(ctx, ReservationQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "09:00", all[0].StartTime)

	hall, err := db.ListReservations(ctx, ReservationQuery{ResourceID: "hall", From: testDay, To: testDay})
	require.NoError(t, err)
	assert.Len(t, hall, 2)

	mine, err := db.ListReservations(ctx, ReservationQuery{UserID: 1})
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	require.NoError(t, db.CancelReservation(ctx, all[0].ID))
	active, err := db.ListReservations(ctx, ReservationQuery{})
	require.NoError(t, err)
	assert.Len(t, active, 3)

	withCancelled, err := db.ListReservations(ctx, ReservationQuery{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, withCancelled, 4)
}
