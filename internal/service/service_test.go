package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/seyone-projects/reda-backend/internal/booking"
	"github.com/seyone-projects/reda-backend/internal/database"
	"github.com/seyone-projects/reda-backend/internal/models"
)

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockSync struct {
	mock.Mock
}

func (m *mockSync) EnqueueTask(ctx context.Context, taskType string, reservationID int64, r *models.Reservation) error {
	return m.Called(ctx, taskType, reservationID, r).Error(0)
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestValidator(db *database.DB) *booking.Validator {
	logger := zerolog.Nop()
	store := db.Reservations()
	return booking.NewValidator(store, store, booking.Options{}, &logger)
}
