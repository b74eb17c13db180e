package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// IntroSource loads the consent-screen summary of an exam.
type IntroSource interface {
	GetIntro(ctx context.Context, examID uuid.UUID) (*model.ExamIntro, error)
}

// StudentPortalHandler handles student-facing HTTP endpoints.
type StudentPortalHandler struct {
	exams IntroSource
	log   zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(exams IntroSource, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		exams: exams,
		log:   log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetExamIntro godoc
// GET /api/v1/student/exams/:exam_id/intro
// Returns what the student sees before granting the camera.
func (h *StudentPortalHandler) GetExamIntro(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	intro, err := h.exams.GetIntro(c.Request.Context(), examID)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, intro)
	case errors.Is(err, session.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusForbidden, response.ErrExamNotAvailable)
	default:
		log := response.WithRequestID(c, h.log)
		log.Error().Err(err).Str("exam_id", examID.String()).Msg("Get exam intro failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
