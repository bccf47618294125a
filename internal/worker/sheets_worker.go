package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"practiceapi/internal/domain"
	"practiceapi/internal/logging"
	"practiceapi/internal/metrics"
	"practiceapi/internal/models"
	"practiceapi/internal/retry"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskBookingUpsert = "booking_upsert"
	TaskBookingDelete = "booking_delete"
	TaskBidAppend     = "bid_append"
)

// TaskStore persists sync tasks; *database.DB implements it.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// syncPayload is persisted in SyncTask.Payload as JSON.
type syncPayload struct {
	Booking *models.Booking `json:"booking,omitempty"`
	Bid     *models.Bid     `json:"bid,omitempty"`
}

// SheetsWorker consumes sync_queue tasks and applies them to Google Sheets.
type SheetsWorker struct {
	store         TaskStore
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   retry.Policy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSheetsWorker builds a worker with sane defaults. redisClient may be nil.
func NewSheetsWorker(store TaskStore, sheets domain.SheetsWriter, redisClient *redis.Client, policy retry.Policy, logger *zerolog.Logger) *SheetsWorker {
	if policy.MaxRetries == 0 {
		policy.MaxRetries = 5
	}
	if policy.InitialDelay == 0 {
		policy.InitialDelay = 2 * time.Second
	}
	if policy.MaxDelay == 0 {
		policy.MaxDelay = time.Minute
	}
	if policy.BackoffFactor == 0 {
		policy.BackoffFactor = 2
	}

	return &SheetsWorker{
		store:         store,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   policy,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "practiceapi:sheets:queue",
		deadLetterKey: "practiceapi:sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logging.Component(logger, "sheets_worker"),
	}
}

// EnqueueBooking schedules an upsert or delete of a booking row.
func (w *SheetsWorker) EnqueueBooking(ctx context.Context, taskType string, booking *models.Booking) error {
	if taskType != TaskBookingUpsert && taskType != TaskBookingDelete {
		return fmt.Errorf("unknown booking task type: %q", taskType)
	}
	if booking == nil || booking.ID == 0 {
		return errors.New("booking id is required")
	}
	return w.enqueue(ctx, taskType, booking.ID, syncPayload{Booking: booking})
}

// EnqueueBid schedules appending a bid row.
func (w *SheetsWorker) EnqueueBid(ctx context.Context, bid *models.Bid) error {
	if bid == nil || bid.ID == 0 {
		return errors.New("bid id is required")
	}
	return w.enqueue(ctx, TaskBidAppend, bid.ID, syncPayload{Bid: bid})
}

// enqueue persists the task and hands it to redis or the in-memory queue.
func (w *SheetsWorker) enqueue(ctx context.Context, taskType string, entityID int64, payload syncPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType: taskType,
		EntityID: entityID,
		Payload:  string(payloadBytes),
		Status:   models.SyncStatusPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if n := w.processPending(ctx); n == 0 {
			w.sleep(ctx)
		}
	}
}

// processPending handles one batch of due tasks from the store and returns how many it saw.
func (w *SheetsWorker) processPending(ctx context.Context) int {
	tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("fetch pending")
		}
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	metrics.IncSyncTask(task.TaskType, models.SyncStatusCompleted)
}

func (w *SheetsWorker) handleTask(ctx context.Context, taskType string, payload syncPayload) error {
	switch taskType {
	case TaskBookingUpsert:
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		return w.sheets.UpsertBooking(ctx, payload.Booking)
	case TaskBookingDelete:
		if payload.Booking == nil || payload.Booking.ID == 0 {
			return errors.New("booking id missing")
		}
		return w.sheets.DeleteBookingRow(ctx, payload.Booking.ID)
	case TaskBidAppend:
		if payload.Bid == nil {
			return errors.New("bid payload missing")
		}
		return w.sheets.AppendBid(ctx, payload.Bid)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("sync task will be retried")
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncSyncTask(task.TaskType, models.SyncStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("type", task.TaskType).Msg("sync task failed")

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
		}
	}
}

func decodePayload(raw string) (syncPayload, error) {
	var payload syncPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
