package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/database"
	"github.com/seyone-projects/reda-backend/internal/domain"
	"github.com/seyone-projects/reda-backend/internal/metrics"
	"github.com/seyone-projects/reda-backend/internal/models"
)

const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
)

const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

const (
	queueKey      = "sheets:queue"
	deadLetterKey = "sheets:deadletter"
	wakeBuffer    = 128
	pendingBatch  = 20
)

// sheetTaskPayload is persisted in SyncTask.Payload as JSON.
type sheetTaskPayload struct {
	ReservationID int64               `json:"reservation_id"`
	Reservation   *models.Reservation `json:"reservation,omitempty"`
	Status        string              `json:"status,omitempty"`
}

func newSheetTaskPayload(id int64, r *models.Reservation) sheetTaskPayload {
	p := sheetTaskPayload{ReservationID: id, Reservation: r, Status: StatusActive}
	if r != nil && r.IsCancelled {
		p.Status = StatusCancelled
	}
	return p
}

func decodePayload(raw string) (sheetTaskPayload, error) {
	var p sheetTaskPayload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}

// taskSource yields one task without blocking for long, or false.
type taskSource func(ctx context.Context) (models.SyncTask, bool)

// SheetsWorker mirrors reservations into the spreadsheet. The sync_queue
// table is the source of truth; redis and the local channel are fast paths
// that deliver a task before the next table poll would.
type SheetsWorker struct {
	db     *database.DB
	sheets domain.SheetsWriter
	redis  *redis.Client
	retry  RetryPolicy
	wake   chan models.SyncTask
	poll   time.Duration
	logger *zerolog.Logger
}

func NewSheetsWorker(db *database.DB, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *SheetsWorker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sheets_worker").Logger()

	return &SheetsWorker{
		db:     db,
		sheets: sheets,
		redis:  redisClient,
		retry:  retry.withDefaults(),
		wake:   make(chan models.SyncTask, wakeBuffer),
		poll:   pollInterval,
		logger: &l,
	}
}

// EnqueueTask persists the task, then hands it to redis or the local channel.
// A task that fits in neither is still picked up by the next poll.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, reservationID int64, r *models.Reservation) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if reservationID == 0 && r != nil {
		reservationID = r.ID
	}
	if reservationID == 0 {
		return errors.New("reservation id is required")
	}

	raw, err := json.Marshal(newSheetTaskPayload(reservationID, r))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	task := models.SyncTask{
		TaskType:      taskType,
		ReservationID: reservationID,
		Payload:       string(raw),
		Status:        models.SyncStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		err := w.pushList(ctx, queueKey, &task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, using local queue")
	}
	select {
	case w.wake <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("Local queue full, task left to polling")
	}
	return nil
}

// Start runs until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.poll).Msg("Sheets worker started")
	defer w.logger.Info().Msg("Sheets worker stopped")

	sources := []taskSource{
		func(context.Context) (models.SyncTask, bool) { return w.tryLocalQueue() },
		w.tryRedis,
	}

	for ctx.Err() == nil {
		if w.drain(ctx, sources) || w.ProcessPending(ctx) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
		case t := <-w.wake:
			w.processTask(ctx, &t)
		case <-time.After(w.poll):
		}
	}
}

// drain processes the first task any source yields.
func (w *SheetsWorker) drain(ctx context.Context, sources []taskSource) bool {
	for _, next := range sources {
		if t, ok := next(ctx); ok {
			w.processTask(ctx, &t)
			return true
		}
	}
	return false
}

// ProcessPending handles one batch of due tasks from the database and
// returns how many it picked up.
func (w *SheetsWorker) ProcessPending(ctx context.Context) int {
	tasks, err := w.db.GetPendingSyncTasks(ctx, pendingBatch)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to fetch pending sync tasks")
		return 0
	}
	metrics.SetSyncQueueDepth(len(tasks))
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.wake:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, queueKey).Result()
	switch {
	case errors.Is(err, redis.Nil), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.SyncTask{}, false
	case err != nil:
		w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		return models.SyncTask{}, false
	case len(res) != 2:
		return models.SyncTask{}, false
	}

	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("Dropping undecodable redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.fail(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}
	if err := w.handleSheetTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncSyncTask(task.TaskType, models.SyncStatusCompleted)
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark task completed")
	}
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, taskType string, p sheetTaskPayload) error {
	switch taskType {
	case TaskUpsert:
		if p.Reservation == nil {
			return errors.New("reservation payload missing")
		}
		return w.sheets.UpsertReservation(ctx, p.Reservation)
	case TaskUpdateStatus:
		if p.ReservationID == 0 || p.Status == "" {
			return errors.New("reservation id or status missing")
		}
		return w.sheets.UpdateReservationStatus(ctx, p.ReservationID, p.Status)
	}
	return fmt.Errorf("unknown task type: %s", taskType)
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retry.MaxRetries {
		w.fail(ctx, task, cause)
		return
	}

	at := time.Now().Add(w.retry.NextDelay(attempt))
	metrics.IncSyncTask(task.TaskType, models.SyncStatusRetry)
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Time("next_retry_at", at).
		Msg("Sync task failed, retry scheduled")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &at); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark task for retry")
	}
}

// fail marks the task failed and copies it to the redis dead-letter list.
func (w *SheetsWorker) fail(ctx context.Context, task *models.SyncTask, cause error) {
	metrics.IncSyncTask(task.TaskType, models.SyncStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Msg("Sync task failed permanently")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark task failed")
	}
	if w.redis == nil {
		return
	}
	if err := w.pushList(ctx, deadLetterKey, task); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Dead-letter push failed")
	}
}

func (w *SheetsWorker) pushList(ctx context.Context, key string, task *models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
