package repository

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seyone-projects/reda-backend/internal/models"
)

var errRedisDown = errors.New("dial tcp: connection refused")

// switchableRepo is a memory repository that can be turned off like a lost redis.
type switchableRepo struct {
	*MemorySessionRepository
	down  atomic.Bool
	calls atomic.Int32
}

func newSwitchableRepo() *switchableRepo {
	return &switchableRepo{MemorySessionRepository: NewMemorySessionRepository()}
}

func (s *switchableRepo) check() error {
	s.calls.Add(1)
	if s.down.Load() {
		return errRedisDown
	}
	return nil
}

func (s *switchableRepo) SaveSession(ctx context.Context, session *models.Session) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.MemorySessionRepository.SaveSession(ctx, session)
}

func (s *switchableRepo) GetSession(ctx context.Context, userID int64) (*models.Session, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.MemorySessionRepository.GetSession(ctx, userID)
}

func (s *switchableRepo) DeleteSession(ctx context.Context, userID int64) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.MemorySessionRepository.DeleteSession(ctx, userID)
}

func (s *switchableRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.MemorySessionRepository.CheckRateLimit(ctx, key, limit, window)
}

func session(userID int64) *models.Session {
	now := time.Now()
	return &models.Session{UserID: userID, Token: "tok", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
}

func newFailover(t *testing.T) (*FailoverSessionRepository, *switchableRepo, *MemorySessionRepository) {
	t.Helper()
	primary := newSwitchableRepo()
	fallback := NewMemorySessionRepository()
	logger := zerolog.New(io.Discard)
	return NewFailoverSessionRepository(primary, fallback, &logger), primary, fallback
}

func TestFailover_PrimaryHealthy(t *testing.T) {
	ctx := context.Background()
	repo, primary, fallback := newFailover(t)

	require.NoError(t, repo.SaveSession(ctx, session(1)))

	got, err := repo.GetSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)

	inFallback, _ := fallback.GetSession(ctx, 1)
	assert.Nil(t, inFallback, "healthy primary must not write to fallback")
	assert.False(t, repo.isDown.Load())
	assert.EqualValues(t, 2, primary.calls.Load())
}

func TestFailover_OutageServesFromFallback(t *testing.T) {
	ctx := context.Background()
	repo, primary, fallback := newFailover(t)
	primary.down.Store(true)

	require.NoError(t, repo.SaveSession(ctx, session(2)))
	assert.True(t, repo.isDown.Load())

	stored, _ := fallback.GetSession(ctx, 2)
	require.NotNil(t, stored)

	callsAfterFailure := primary.calls.Load()
	got, err := repo.GetSession(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, callsAfterFailure, primary.calls.Load(), "primary is not retried before the recovery interval")
}

func TestFailover_Recovery(t *testing.T) {
	ctx := context.Background()
	repo, primary, _ := newFailover(t)
	primary.down.Store(true)
	require.NoError(t, repo.SaveSession(ctx, session(3)))
	require.True(t, repo.isDown.Load())

	t.Run("RetryStillFailing", func(t *testing.T) {
		repo.lastCheck = time.Now().Add(-2 * recoveryInterval)
		got, err := repo.GetSession(ctx, 3)
		require.NoError(t, err)
		assert.NotNil(t, got, "fallback still answers")
		assert.True(t, repo.isDown.Load())
	})

	t.Run("RetrySucceeds", func(t *testing.T) {
		primary.down.Store(false)
		require.NoError(t, primary.MemorySessionRepository.SaveSession(ctx, session(3)))
		repo.lastCheck = time.Now().Add(-2 * recoveryInterval)

		got, err := repo.GetSession(ctx, 3)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.False(t, repo.isDown.Load())
	})
}

func TestFailover_LogoutClearsBothStores(t *testing.T) {
	ctx := context.Background()
	repo, primary, fallback := newFailover(t)

	require.NoError(t, primary.MemorySessionRepository.SaveSession(ctx, session(4)))
	require.NoError(t, fallback.SaveSession(ctx, session(4)))

	require.NoError(t, repo.DeleteSession(ctx, 4))

	p, _ := primary.MemorySessionRepository.GetSession(ctx, 4)
	f, _ := fallback.GetSession(ctx, 4)
	assert.Nil(t, p)
	assert.Nil(t, f)

	// A logout during an outage still lands in the fallback.
	require.NoError(t, fallback.SaveSession(ctx, session(5)))
	primary.down.Store(true)
	require.NoError(t, repo.DeleteSession(ctx, 5))
	f, _ = fallback.GetSession(ctx, 5)
	assert.Nil(t, f)
	assert.True(t, repo.isDown.Load())
}

func TestFailover_RateLimit(t *testing.T) {
	ctx := context.Background()
	repo, primary, _ := newFailover(t)

	allowed, err := repo.CheckRateLimit(ctx, "ip:10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	primary.down.Store(true)
	allowed, err = repo.CheckRateLimit(ctx, "ip:10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "fallback keeps its own window")
	assert.True(t, repo.isDown.Load())

	allowed, err = repo.CheckRateLimit(ctx, "ip:10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}
