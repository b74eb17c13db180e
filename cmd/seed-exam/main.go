package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// seedFile is the authoring document accepted by seed-exam.
type seedFile struct {
	ID              string          `json:"id"`
	Title           string          `json:"title" binding:"required,max=255"`
	DurationMinutes int             `json:"duration_minutes" binding:"required,min=1"`
	IsActive        bool            `json:"is_active"`
	Questions       json.RawMessage `json:"questions" binding:"required"`
}

func main() {
	var path string
	flag.StringVar(&path, "file", "", "Path to the exam JSON document")
	flag.Parse()

	if path == "" {
		fmt.Println("Usage: seed-exam -file exam.json")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	// ─── Read Document ─────────────────────────────────────────────────
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read exam file")
	}
	rec, err := decodeSeed(data)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Invalid exam file")
	}

	ctx := context.Background()

	// ─── Connect to PostgreSQL & Redis ─────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examRepo := repository.NewExamRepository(pool)
	examService := service.NewExamService(examRepo, service.NewRedisCache(rdb), cfg.ExamCacheTTL, log)

	// ─── Logic ─────────────────────────────────────────────────────────
	if err := examRepo.Upsert(ctx, rec); err != nil {
		log.Fatal().Err(err).Msg("Failed to save exam")
	}
	// Open sessions keep the exam they loaded; new sessions must see the edit.
	if err := examService.InvalidateExam(ctx, rec.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate cached exam")
	}

	fmt.Printf("Success! Exam '%s' saved with ID: %s\n", rec.Title, rec.ID)
}

// decodeSeed validates an authoring document and turns it into a record.
// A missing id gets a fresh one.
func decodeSeed(data []byte) (*model.ExamRecord, error) {
	var doc seedFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if fields := validator.Struct(&doc); fields != nil {
		parts := make([]string, 0, len(fields))
		for field, msg := range fields {
			parts = append(parts, field+": "+msg)
		}
		return nil, errors.New(strings.Join(parts, "; "))
	}

	questions, err := model.ParseQuestions(doc.Questions)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, errors.New("exam has no questions")
	}

	id := uuid.New()
	if doc.ID != "" {
		if id, err = uuid.Parse(doc.ID); err != nil {
			return nil, fmt.Errorf("invalid id: %w", err)
		}
	}

	return &model.ExamRecord{
		ID:              id,
		Title:           doc.Title,
		DurationMinutes: doc.DurationMinutes,
		Questions:       doc.Questions,
		IsActive:        doc.IsActive,
	}, nil
}
