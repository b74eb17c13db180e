package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// Domain Errors
var (
	ErrExamNotAvailable = errors.New("exam is not active")
	ErrCacheMiss        = errors.New("cache miss")
)

// ExamStore is the persistent source of exams.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamRecord, error)
	ListActive(ctx context.Context) ([]model.ExamRecord, error)
}

// ExamCache holds serialized exam records.
type ExamCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisCache implements ExamCache on a Redis client.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps rdb.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// ExamService loads exams for sessions through a Redis cache-aside layer.
// It implements the session exam repository.
type ExamService struct {
	store ExamStore
	cache ExamCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(store ExamStore, cache ExamCache, ttl time.Duration, log zerolog.Logger) *ExamService {
	return &ExamService{
		store: store,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExam returns the exam with parsed questions. Missing exams wrap
// session.ErrExamNotFound; inactive exams return ErrExamNotAvailable.
func (s *ExamService) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	rec, err := s.getRecord(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, ErrExamNotAvailable
	}
	exam, err := rec.ToExam()
	if err != nil {
		return nil, fmt.Errorf("parse exam %s: %w", examID, err)
	}
	return exam, nil
}

// GetIntro returns the consent-screen summary of an active exam.
func (s *ExamService) GetIntro(ctx context.Context, examID uuid.UUID) (*model.ExamIntro, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	intro := exam.Intro()
	return &intro, nil
}

// GetTitle returns the exam title regardless of whether it is active.
func (s *ExamService) GetTitle(ctx context.Context, examID uuid.UUID) (string, error) {
	rec, err := s.getRecord(ctx, examID)
	if err != nil {
		return "", err
	}
	return rec.Title, nil
}

func (s *ExamService) getRecord(ctx context.Context, examID uuid.UUID) (*model.ExamRecord, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())

	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rec model.ExamRecord
		if jsonErr := json.Unmarshal(data, &rec); jsonErr == nil {
			return &rec, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Discarding corrupt cached exam")
	case !errors.Is(err, ErrCacheMiss):
		// Redis trouble must not take exams down; fall back to PostgreSQL.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache read failed")
	}

	rec, err := s.store.GetByID(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", session.ErrExamNotFound, examID)
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if err := s.WarmExamCache(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache write failed")
	}
	return rec, nil
}

// WarmExamCache stores an exam record in Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, rec *model.ExamRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	if err := s.cache.Set(ctx, config.CacheKey.ExamPayloadKey(rec.ID.String()), data, s.ttl); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	s.log.Debug().Str("exam_id", rec.ID.String()).Msg("Cache warmed")
	return nil
}

// InvalidateExam drops the cached copy so the next load reads PostgreSQL.
func (s *ExamService) InvalidateExam(ctx context.Context, examID uuid.UUID) error {
	return s.cache.Del(ctx, config.CacheKey.ExamPayloadKey(examID.String()))
}

// PrewarmAllCaches loads all active exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No active exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if _, err := exams[i].ToExam(); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Exam has invalid questions, skipping")
			continue
		}
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}
