package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seyone-projects/reda-backend/internal/models"
)

type fakeStore struct {
	reservations []*models.Reservation
	queries      int
	err          error
}

func (s *fakeStore) FindOne(_ context.Context, f Filter) (*models.Reservation, error) {
	s.queries++
	if s.err != nil {
		return nil, s.err
	}
	for _, r := range s.reservations {
		if f.Matches(r) {
			return r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindLatestEnding(_ context.Context, f Filter) (*models.Reservation, error) {
	s.queries++
	if s.err != nil {
		return nil, s.err
	}
	var best *models.Reservation
	var bestEnd Clock
	for _, r := range s.reservations {
		if !f.Matches(r) {
			continue
		}
		end, err := ParseClock(r.EndTime)
		if err != nil {
			continue
		}
		if best == nil || end > bestEnd {
			best, bestEnd = r, end
		}
	}
	return best, nil
}

const (
	testResource    = "clubhouse"
	testAssociation = "assoc-1"
	testDate        = "2024-05-10"
)

func newTestValidator(store *fakeStore) *Validator {
	logger := zerolog.Nop()
	return NewValidator(store, nil, Options{}, &logger)
}

func request(kind models.BookingKind) models.BookingRequest {
	return models.BookingRequest{
		ResourceID:    testResource,
		AssociationID: testAssociation,
		BookingDate:   testDate,
		Kind:          kind,
	}
}

func hourly(start, end string) models.BookingRequest {
	req := request(models.KindHourly)
	req.StartTime, req.EndTime = start, end
	return req
}

func halfDay(slot models.TimeSlot) models.BookingRequest {
	req := request(models.KindHalfDay)
	req.TimeSlot = slot
	return req
}

// book validates req and, when admitted, commits it to the store.
func book(t *testing.T, v *Validator, store *fakeStore, req models.BookingRequest) Result {
	t.Helper()
	res, err := v.Validate(context.Background(), req)
	require.NoError(t, err)
	if !res.Admitted {
		return res
	}
	parsed, bad := v.Parse(req)
	require.Nil(t, bad)
	r := &models.Reservation{
		ID:            int64(len(store.reservations) + 1),
		ResourceID:    parsed.ResourceID,
		AssociationID: parsed.AssociationID,
		BookingDate:   parsed.Date,
		Kind:          parsed.Kind,
		TimeSlot:      parsed.Slot,
	}
	if parsed.Kind == models.KindHourly {
		r.StartTime, r.EndTime = parsed.Range.Start.String(), parsed.Range.End.String()
	}
	store.reservations = append(store.reservations, r)
	return res
}

func TestValidate_MissingFieldsNeverQueries(t *testing.T) {
	tests := []struct {
		name string
		req  models.BookingRequest
	}{
		{"NoResource", models.BookingRequest{BookingDate: testDate, Kind: models.KindFree}},
		{"NoDate", models.BookingRequest{ResourceID: testResource, Kind: models.KindFree}},
		{"NoKind", models.BookingRequest{ResourceID: testResource, BookingDate: testDate}},
		{"BlankResource", models.BookingRequest{ResourceID: "  ", BookingDate: testDate, Kind: models.KindFree}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{err: errors.New("must not be called")}
			res, err := newTestValidator(store).Validate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.False(t, res.Admitted)
			assert.Equal(t, MsgMissingFields, res.Reason)
			assert.Equal(t, CodeMissingFields, res.Code)
			assert.Zero(t, store.queries)
		})
	}
}

func TestValidate_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  models.BookingRequest
		code Code
	}{
		{"UnknownKind", request("Weekly"), CodeInvalidInput},
		{"BadDate", models.BookingRequest{ResourceID: testResource, BookingDate: "10/05/2024", Kind: models.KindFree}, CodeInvalidInput},
		{"UnknownSlot", halfDay("Evening"), CodeInvalidInput},
		{"HourlyWithoutEnd", hourly("10:00", ""), CodeMissingTimes},
		{"HourlyWithoutStart", hourly("", "11:00"), CodeMissingTimes},
		{"HourlyBadFormat", hourly("10am", "11:00"), CodeInvalidInput},
		{"HourlyEndBeforeStart", hourly("11:00", "10:00"), CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			res, err := newTestValidator(store).Validate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.False(t, res.Admitted)
			assert.Equal(t, tt.code, res.Code)
			assert.Zero(t, store.queries)
		})
	}

	res, err := newTestValidator(&fakeStore{}).Validate(context.Background(), hourly("10:00", ""))
	require.NoError(t, err)
	assert.Equal(t, MsgMissingTimes, res.Reason)
}

func TestValidate_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")

	for _, req := range []models.BookingRequest{
		request(models.KindWholeDay),
		halfDay(models.SlotMorning),
		hourly("10:00", "11:00"),
		request(models.KindFree),
	} {
		t.Run(string(req.Kind), func(t *testing.T) {
			store := &fakeStore{err: boom}
			res, err := newTestValidator(store).Validate(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.False(t, res.Admitted)
			assert.Empty(t, res.Reason)
		})
	}
}

func TestNoDoubleWholeDay(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)

	// Scenario A: empty day admits a whole-day booking.
	res := book(t, v, store, request(models.KindWholeDay))
	assert.True(t, res.Admitted)
	assert.Empty(t, res.Reason)

	res = book(t, v, store, request(models.KindWholeDay))
	assert.False(t, res.Admitted)
	assert.Equal(t, CodeWholeDayBooked, res.Code)
	assert.Equal(t, MsgWholeDayBooked, res.Reason)

	t.Run("OtherDateUnaffected", func(t *testing.T) {
		req := request(models.KindWholeDay)
		req.BookingDate = "2024-05-11"
		res := book(t, v, store, req)
		assert.True(t, res.Admitted)
	})

	t.Run("OtherAssociationUnaffected", func(t *testing.T) {
		req := request(models.KindWholeDay)
		req.AssociationID = "assoc-2"
		res := book(t, v, store, req)
		assert.True(t, res.Admitted)
	})

	t.Run("CancelledDoesNotBlock", func(t *testing.T) {
		for _, r := range store.reservations {
			r.IsCancelled = true
		}
		res := book(t, v, store, request(models.KindWholeDay))
		assert.True(t, res.Admitted)
	})
}

func TestHalfDayIndependence(t *testing.T) {
	orders := [][]models.TimeSlot{
		{models.SlotMorning, models.SlotAfternoon},
		{models.SlotAfternoon, models.SlotMorning},
	}

	for _, order := range orders {
		t.Run(fmt.Sprintf("%s_then_%s", order[0], order[1]), func(t *testing.T) {
			store := &fakeStore{}
			v := newTestValidator(store)

			assert.True(t, book(t, v, store, halfDay(order[0])).Admitted)
			assert.True(t, book(t, v, store, halfDay(order[1])).Admitted)

			again := book(t, v, store, halfDay(order[0]))
			assert.False(t, again.Admitted)
			assert.Equal(t, CodeSlotTaken, again.Code)
			assert.Equal(t, MsgSlotTaken, again.Reason)
		})
	}
}

func TestHalfDayBlockedByWholeDay(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)

	require.True(t, book(t, v, store, request(models.KindWholeDay)).Admitted)

	res := book(t, v, store, halfDay(models.SlotAfternoon))
	assert.False(t, res.Admitted)
	assert.Equal(t, CodeDayBooked, res.Code)
	assert.Equal(t, MsgDayBooked, res.Reason)

	t.Run("WithoutSlot", func(t *testing.T) {
		res := book(t, v, store, request(models.KindHalfDay))
		assert.False(t, res.Admitted)
		assert.Equal(t, CodeDayBooked, res.Code)
	})
}

func TestWholeDayBlockedByHalfDay(t *testing.T) {
	for _, slot := range []models.TimeSlot{models.SlotMorning, models.SlotAfternoon} {
		t.Run(string(slot), func(t *testing.T) {
			store := &fakeStore{}
			v := newTestValidator(store)

			// Scenario C.
			require.True(t, book(t, v, store, halfDay(slot)).Admitted)

			res := book(t, v, store, request(models.KindWholeDay))
			assert.False(t, res.Admitted)
			assert.Equal(t, CodeWholeDayBlockedByHalf, res.Code)
			assert.Contains(t, res.Reason, "half-day booking")
		})
	}
}

func TestHourlyOverlapSymmetry(t *testing.T) {
	intervals := [][2]string{
		{"08:00", "09:00"},
		{"08:30", "09:30"},
		{"09:00", "10:00"},
		{"10:00", "12:00"},
		{"10:30", "11:00"},
		{"13:00", "14:00"},
	}

	for _, first := range intervals {
		for _, second := range intervals {
			name := fmt.Sprintf("%s-%s_vs_%s-%s", first[0], first[1], second[0], second[1])
			t.Run(name, func(t *testing.T) {
				store := &fakeStore{}
				v := newTestValidator(store)

				require.True(t, book(t, v, store, hourly(first[0], first[1])).Admitted)

				res, err := v.HourlyConflict(context.Background(), scope(), mustRange(second[0], second[1]))
				require.NoError(t, err)

				a, b := mustRange(first[0], first[1]), mustRange(second[0], second[1])
				overlaps := a.Start < b.End && b.Start < a.End
				if overlaps {
					require.NotNil(t, res)
					assert.Equal(t, CauseBusy, res.Cause)
				} else if res != nil {
					// Only the maintenance window may still reject disjoint ranges.
					assert.Equal(t, CauseMaintenance, res.Cause)
				}
			})
		}
	}
}

func TestMaintenanceBuffer(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)
	require.True(t, book(t, v, store, hourly("10:00", "11:00")).Admitted)

	tests := []struct {
		start, end string
		admitted   bool
	}{
		{"11:00", "12:00", false},
		{"11:15", "11:45", false},
		{"11:29", "12:00", false},
		{"11:30", "12:30", true},
		{"12:00", "13:00", true},
		{"08:00", "09:30", true},
	}

	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			res, err := v.Validate(context.Background(), hourly(tt.start, tt.end))
			require.NoError(t, err)
			assert.Equal(t, tt.admitted, res.Admitted, res.Reason)
			if !tt.admitted {
				assert.Equal(t, CodeHourlyMaintenance, res.Code)
				assert.Equal(t, CauseMaintenance, res.Cause)
				assert.Equal(t, "11:30", res.AvailableFrom)
				assert.Equal(t, "Under maintenance until 11:30.", res.Reason)
			}
		})
	}
}

func TestMaintenanceUsesLatestEnding(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)
	require.True(t, book(t, v, store, hourly("08:00", "09:00")).Admitted)
	require.True(t, book(t, v, store, hourly("14:00", "15:00")).Admitted)

	// 09:10 falls right after the early booking, but only the latest end counts.
	res, err := v.Validate(context.Background(), hourly("09:10", "10:00"))
	require.NoError(t, err)
	assert.True(t, res.Admitted)

	res, err = v.Validate(context.Background(), hourly("15:00", "16:00"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, "15:30", res.AvailableFrom)
}

func TestMaintenanceBufferIsConfigurable(t *testing.T) {
	store := &fakeStore{}
	logger := zerolog.Nop()
	v := NewValidator(store, nil, Options{MaintenanceBuffer: 45 * time.Minute}, &logger)
	require.True(t, book(t, v, store, hourly("10:00", "11:00")).Admitted)

	res, err := v.Validate(context.Background(), hourly("11:30", "12:00"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, "11:45", res.AvailableFrom)
}

func TestScenarioB(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)
	require.True(t, book(t, v, store, hourly("10:00", "11:00")).Admitted)

	res, err := v.Validate(context.Background(), hourly("11:15", "11:45"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, "11:30", res.AvailableFrom)

	res, err = v.Validate(context.Background(), hourly("10:30", "11:30"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, CodeHourlyBooked, res.Code)
	assert.Equal(t, MsgHourlyBooked, res.Reason)
	assert.Equal(t, CauseBusy, res.Cause)
}

func TestHalfDayBlocksOverlappingHourly(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)
	require.True(t, book(t, v, store, halfDay(models.SlotMorning)).Admitted)

	res, err := v.Validate(context.Background(), hourly("09:00", "10:00"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, CodeHourlyHalfDay, res.Code)
	assert.Equal(t, MsgHourlyHalfDay, res.Reason)

	res, err = v.Validate(context.Background(), hourly("14:00", "15:00"))
	require.NoError(t, err)
	assert.True(t, res.Admitted)

	// Slot ranges are inclusive, so noon still belongs to the morning.
	res, err = v.Validate(context.Background(), hourly("12:00", "13:00"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
}

func TestScenarioD(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)
	require.True(t, book(t, v, store, halfDay(models.SlotAfternoon)).Admitted)

	res := book(t, v, store, hourly("09:00", "10:00"))
	assert.True(t, res.Admitted)

	res = book(t, v, store, hourly("16:00", "17:00"))
	assert.False(t, res.Admitted)
	assert.Equal(t, CodeHourlyHalfDay, res.Code)
}

func TestFreeBookingUniqueness(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)

	assert.True(t, book(t, v, store, request(models.KindFree)).Admitted)

	res := book(t, v, store, request(models.KindFree))
	assert.False(t, res.Admitted)
	assert.Equal(t, CodeFreeExists, res.Code)
	assert.Equal(t, MsgDayBooked, res.Reason)

	req := request(models.KindFree)
	req.BookingDate = "2024-05-11"
	assert.True(t, book(t, v, store, req).Admitted)
}

type stubFreeChecker struct {
	exists bool
	calls  int
}

func (s *stubFreeChecker) FreeBookingExists(context.Context, string, string, time.Time) (bool, error) {
	s.calls++
	return s.exists, nil
}

func TestFreeBookingDelegatesToChecker(t *testing.T) {
	store := &fakeStore{}
	free := &stubFreeChecker{exists: true}
	logger := zerolog.Nop()
	v := NewValidator(store, free, Options{}, &logger)

	res, err := v.Validate(context.Background(), request(models.KindFree))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, 1, free.calls)
	assert.Zero(t, store.queries)
}

// scriptedStore answers each filter shape independently, so a gate can be
// exercised even when an earlier gate would normally catch the same booking.
type scriptedStore struct {
	timed  *models.Reservation
	hourly *models.Reservation
}

func (s *scriptedStore) FindOne(_ context.Context, f Filter) (*models.Reservation, error) {
	if len(f.Kinds) == 1 && f.Kinds[0] == models.KindHourly {
		return s.hourly, nil
	}
	if f.Timed {
		return s.timed, nil
	}
	return nil, nil
}

func (s *scriptedStore) FindLatestEnding(context.Context, Filter) (*models.Reservation, error) {
	return nil, nil
}

func TestHourlyGatesRegression(t *testing.T) {
	logger := zerolog.Nop()
	existing := &models.Reservation{Kind: models.KindHourly, StartTime: "10:00", EndTime: "11:00"}

	t.Run("DirectOverlapGate", func(t *testing.T) {
		v := NewValidator(&scriptedStore{timed: existing}, nil, Options{}, &logger)
		res, err := v.Validate(context.Background(), hourly("10:30", "11:30"))
		require.NoError(t, err)
		assert.Equal(t, CodeHourlyBooked, res.Code)
	})

	t.Run("HourlyOnlyGate", func(t *testing.T) {
		v := NewValidator(&scriptedStore{hourly: existing}, nil, Options{}, &logger)
		res, err := v.Validate(context.Background(), hourly("10:30", "11:30"))
		require.NoError(t, err)
		assert.False(t, res.Admitted)
		assert.Equal(t, CodeHourlyOverlap, res.Code)
		assert.Equal(t, MsgHourlyOverlap, res.Reason)
	})

	t.Run("BothGatesAgreeOnRealData", func(t *testing.T) {
		store := &fakeStore{}
		v := newTestValidator(store)
		require.True(t, book(t, v, store, hourly("10:00", "11:00")).Admitted)

		for _, rng := range []TimeRange{
			mustRange("09:00", "10:30"),
			mustRange("10:15", "10:45"),
			mustRange("10:30", "12:00"),
			mustRange("09:00", "12:00"),
		} {
			conflict, err := v.HourlyConflict(context.Background(), scope(), rng)
			require.NoError(t, err)
			gate, err := v.OverlapsHourly(context.Background(), scope(), rng)
			require.NoError(t, err)
			assert.NotNil(t, conflict, rng.String())
			assert.True(t, gate, rng.String())
		}

		gate, err := v.OverlapsHourly(context.Background(), scope(), mustRange("08:00", "10:00"))
		require.NoError(t, err)
		assert.False(t, gate)
	})
}

func TestExportedChecks(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)
	ctx := context.Background()

	ok, err := v.WholeDayExists(ctx, scope())
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, book(t, v, store, halfDay(models.SlotMorning)).Admitted)

	carved, err := v.HalfDayCarveOutExists(ctx, scope())
	require.NoError(t, err)
	assert.True(t, carved)

	taken, err := v.SlotTaken(ctx, scope(), models.SlotMorning)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = v.SlotTaken(ctx, scope(), models.SlotAfternoon)
	require.NoError(t, err)
	assert.False(t, taken)

	conflict, err := v.ConflictsWithHalfDay(ctx, scope(), MustClock("07:00"))
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = v.ConflictsWithHalfDay(ctx, scope(), MustClock("19:00"))
	require.NoError(t, err)
	assert.False(t, conflict)

	free, err := v.FreeBookingExists(ctx, scope())
	require.NoError(t, err)
	assert.False(t, free)
}

func TestValidate_TimestampDateSameDay(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)
	require.True(t, book(t, v, store, request(models.KindWholeDay)).Admitted)

	req := request(models.KindWholeDay)
	req.BookingDate = "2024-05-10T15:30:00Z"
	res, err := v.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, CodeWholeDayBooked, res.Code)
}

func scope() Scope {
	date, _ := NormalizeDate(testDate, nil)
	return Scope{ResourceID: testResource, AssociationID: testAssociation, Date: date}
}

func mustRange(start, end string) TimeRange {
	rng, err := ParseRange(start, end)
	if err != nil {
		panic(err)
	}
	return rng
}

func TestMaintenanceUntil(t *testing.T) {
	store := &fakeStore{}
	v := newTestValidator(store)
	ctx := context.Background()

	_, ok, err := v.MaintenanceUntil(ctx, scope())
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, book(t, v, store, hourly("09:00", "10:00")).Admitted)
	require.True(t, book(t, v, store, hourly("13:00", "14:15")).Admitted)

	until, ok, err := v.MaintenanceUntil(ctx, scope())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "14:45", until.String())
	assert.Equal(t, time.UTC, v.Location())
}
