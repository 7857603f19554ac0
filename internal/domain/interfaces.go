package domain

import (
	"context"
	"io"
	"time"

	"github.com/seyone-projects/reda-backend/internal/models"
)

// SessionRepository keeps one active session per user plus request counters.
type SessionRepository interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, userID int64) (*models.Session, error)
	DeleteSession(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SheetsWriter interface {
	UpsertReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, reservationID int64, status string) error
}

type SyncEnqueuer interface {
	EnqueueTask(ctx context.Context, taskType string, reservationID int64, r *models.Reservation) error
}

// FileStore persists uploaded files and returns the URL they are served from.
type FileStore interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Remove(ctx context.Context, url string) error
}

type SMSSender interface {
	Send(ctx context.Context, mobile, message string) error
}
