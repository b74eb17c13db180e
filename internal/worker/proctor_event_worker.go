package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	DefaultBatchSize = 500
	BatchTimeout     = 2 * time.Second
	PollTimeout      = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ErrQueueEmpty is returned by Queue.Pop when the poll timed out.
var ErrQueueEmpty = errors.New("queue empty")

// EventStore persists proctor events.
type EventStore interface {
	CopyEvents(ctx context.Context, events []model.ProctorEvent) (int64, error)
	InsertEvent(ctx context.Context, e model.ProctorEvent) error
}

// Queue is the list the proctor publisher pushes events onto.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Push(ctx context.Context, items []string) error
}

// RedisQueue implements Queue with a Redis list.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue reads the proctor event persistence queue.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: config.WorkerKey.PersistProctorEventsQueue}
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	// BLPop blocks for timeout. Returns immediately if data exists.
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrQueueEmpty
	}
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", ErrQueueEmpty
	}
	return result[1], nil
}

func (q *RedisQueue) Push(ctx context.Context, items []string) error {
	// Use a pipeline to push everything back quickly
	pipe := q.rdb.Pipeline()
	for _, item := range items {
		pipe.RPush(ctx, q.key, item)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ProctorEventWorker drains queued proctor events into PostgreSQL in batches.
type ProctorEventWorker struct {
	store     EventStore
	queue     Queue
	batchSize int
	log       zerolog.Logger

	// backoff waits after a Redis error or a requeue; replaced in tests.
	backoff func(ctx context.Context, d time.Duration)
}

func NewProctorEventWorker(store EventStore, queue Queue, batchSize int, log zerolog.Logger) *ProctorEventWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ProctorEventWorker{
		store:     store,
		queue:     queue,
		batchSize: batchSize,
		log:       log.With().Str("component", "proctor_event_worker").Logger(),
		backoff:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (w *ProctorEventWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("ProctorEventWorker started")

	buffer := make([]model.ProctorEvent, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch.
		raw, err := w.queue.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			w.backoff(ctx, 3*time.Second)
			continue
		}

		// 4. Decode. Malformed entries cannot be retried.
		var ev model.ProctorEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed proctor event")
			continue
		}
		buffer = append(buffer, ev)
	}
}

// flushSafe attempts bulk insert, then row inserts, then requeue.
func (w *ProctorEventWorker) flushSafe(ctx context.Context, batch []model.ProctorEvent) {
	if _, err := w.store.CopyEvents(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ProctorEventWorker) fallbackInsert(ctx context.Context, batch []model.ProctorEvent) {
	var requeue []string
	for _, ev := range batch {
		if err := w.store.InsertEvent(ctx, ev); err != nil {
			w.log.Error().Err(err).
				Str("session_id", ev.SessionID.String()).
				Str("kind", string(ev.Kind)).
				Msg("Insert failed, requeueing")
			data, _ := json.Marshal(ev)
			requeue = append(requeue, string(data))
		}
	}
	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ProctorEventWorker) requeue(ctx context.Context, items []string) {
	if err := w.queue.Push(ctx, items); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue proctor events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed proctor events")
	// Avoid thrashing while the database is down hard.
	w.backoff(ctx, 2*time.Second)
}

func (w *ProctorEventWorker) shutdown(buffer []model.ProctorEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
