package repository

import (
	"context"
	"sync"
	"time"

	"github.com/seyone-projects/reda-backend/internal/models"
)

type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[int64]*models.Session
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[int64]*models.Session),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) SaveSession(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.UserID] = &cp
	return nil
}

// GetSession drops sessions past their expiry on read.
func (r *MemorySessionRepository) GetSession(_ context.Context, userID int64) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, nil
	}
	if !s.ExpiresAt.After(r.now()) {
		delete(r.sessions, userID)
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySessionRepository) DeleteSession(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemorySessionRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
