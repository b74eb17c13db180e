package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/answer"
	"github.com/stemsi/exstem-proctor/internal/camera"
	"github.com/stemsi/exstem-proctor/internal/camera/cameratest"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// ─── Fakes ──────────────────────────────────────────────────────────────

type examRepo struct {
	exam *model.Exam
	err  error
}

func (r *examRepo) GetExam(context.Context, uuid.UUID) (*model.Exam, error) {
	return r.exam, r.err
}

type attemptRepo struct {
	mu    sync.Mutex
	errs  []error
	gate  chan struct{}
	saved []*model.Attempt
	calls int
}

func (r *attemptRepo) InsertAttempt(ctx context.Context, a *model.Attempt) error {
	r.mu.Lock()
	r.calls++
	gate := r.gate
	var err error
	if len(r.errs) > 0 {
		err = r.errs[0]
		r.errs = r.errs[1:]
	}
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.saved = append(r.saved, a)
	r.mu.Unlock()
	return nil
}

func (r *attemptRepo) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *attemptRepo) Saved() []*model.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Attempt(nil), r.saved...)
}

type identity struct {
	id  uuid.UUID
	err error
}

func (i identity) CurrentUserID(context.Context) (uuid.UUID, error) { return i.id, i.err }

type eventLog struct {
	mu     sync.Mutex
	events []model.ProctorEvent
}

func (l *eventLog) Record(ev model.ProctorEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) Phases() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		if ev.Kind == model.ProctorEventPhase {
			out = append(out, ev.Detail)
		}
	}
	return out
}

// ─── Helpers ────────────────────────────────────────────────────────────

func str(s string) *string { return &s }

func newExam(t *testing.T, minutes int, raw []model.RawQuestion) *model.Exam {
	t.Helper()
	b, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	questions, err := model.ParseQuestions(b)
	if err != nil {
		t.Fatal(err)
	}
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "Matematika",
		DurationMinutes: minutes,
		Questions:       questions,
		IsActive:        true,
	}
}

func twoChoiceExam(t *testing.T) *model.Exam {
	return newExam(t, 1, []model.RawQuestion{
		{ID: "Q1", QuestionText: "2+2?", Type: "mcq", OptionA: str("4"), OptionB: str("5"), CorrectAnswer: "A"},
		{ID: "Q2", QuestionText: "3+3?", Type: "mcq", OptionA: str("5"), OptionB: str("6"), CorrectAnswer: "B"},
	})
}

type harness struct {
	ctrl     *session.Controller
	clock    *countdown.ManualClock
	device   *cameratest.Device
	attempts *attemptRepo
	events   *eventLog
	student  uuid.UUID
}

func newHarness(t *testing.T, exams *examRepo, dev *cameratest.Device, attempts *attemptRepo, id session.IdentityProvider) *harness {
	t.Helper()
	h := &harness{
		clock:    countdown.NewManualClock(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)),
		device:   dev,
		attempts: attempts,
		events:   &eventLog{},
	}
	if id == nil {
		h.student = uuid.New()
		id = identity{id: h.student}
	}
	examID := uuid.New()
	if exams.exam != nil {
		examID = exams.exam.ID
	}
	h.ctrl = session.New(examID, session.Deps{
		Exams:    exams,
		Attempts: attempts,
		Identity: id,
		Camera:   dev,
	}, session.Options{
		Clock:  h.clock,
		Events: h.events,
	})
	h.ctrl.Open()
	t.Cleanup(h.ctrl.Dispose)
	return h
}

func waitFor(t *testing.T, c *session.Controller, what string, ok func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := c.Snapshot()
		if ok(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last phase %s camera %s", what, s.Phase, s.Camera.Status)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitPhase(t *testing.T, c *session.Controller, p session.Phase) session.Snapshot {
	t.Helper()
	return waitFor(t, c, string(p), func(s session.Snapshot) bool { return s.Phase == p })
}

func waitReady(t *testing.T, c *session.Controller) {
	t.Helper()
	waitFor(t, c, "consent with camera", func(s session.Snapshot) bool {
		return s.Phase == session.PhaseAwaitingConsent && s.Camera.Status == camera.StatusReady
	})
}

func eventually(t *testing.T, what string, ok func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !ok() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// ─── Tests ──────────────────────────────────────────────────────────────

func TestAutoSubmitOnExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), &attemptRepo{}, nil)

	waitReady(t, h.ctrl)
	s := h.ctrl.Snapshot()
	if s.SecondsRemaining != 60 || s.TimeLeft != "00:01:00" {
		t.Fatalf("remaining = %d (%s), want 60", s.SecondsRemaining, s.TimeLeft)
	}

	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.ctrl.SelectAnswer(ctx, "Q1", "A"); err != nil {
		t.Fatalf("select: %v", err)
	}

	for i := 0; i < 60; i++ {
		h.clock.Advance(time.Second)
	}

	s = waitPhase(t, h.ctrl, session.PhaseCompleted)
	if s.SecondsRemaining != 0 {
		t.Errorf("remaining = %d, want 0", s.SecondsRemaining)
	}
	if s.AttemptID == nil || s.StudentID == nil || *s.StudentID != h.student {
		t.Errorf("completed snapshot missing attempt or student: %+v", s)
	}

	saved := h.attempts.Saved()
	if len(saved) != 1 {
		t.Fatalf("saved %d attempts, want 1", len(saved))
	}
	a := saved[0]
	if len(a.Answers) != 1 || a.Answers["Q1"] != "A" {
		t.Errorf("answers = %v, want {Q1:A}", a.Answers)
	}
	if a.Score != model.PlaceholderScore {
		t.Errorf("score = %v, want placeholder", a.Score)
	}
	if !a.SubmittedAt.Equal(h.clock.Now()) {
		t.Errorf("submitted_at = %v, want %v", a.SubmittedAt, h.clock.Now())
	}
	if h.device.LiveTracks() != 0 {
		t.Error("camera still live after completion")
	}
}

func TestCountdownCatchesUpAfterLateWakeup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), &attemptRepo{}, nil)
	waitReady(t, h.ctrl)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}

	h.clock.Advance(30 * time.Second)
	s := waitFor(t, h.ctrl, "30s left", func(s session.Snapshot) bool { return s.SecondsRemaining == 30 })
	if s.Phase != session.PhaseInProgress {
		t.Errorf("phase = %s, want IN_PROGRESS", s.Phase)
	}

	h.clock.Advance(45 * time.Second)
	waitPhase(t, h.ctrl, session.PhaseCompleted)
	if n := h.attempts.Calls(); n != 1 {
		t.Errorf("insert calls = %d, want 1", n)
	}
}

func TestStartRequiresCamera(t *testing.T) {
	ctx := context.Background()
	dev := cameratest.NewDevice(camera.ErrPermissionDenied)
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, dev, &attemptRepo{}, nil)

	s := waitFor(t, h.ctrl, "camera denied", func(s session.Snapshot) bool {
		return s.Phase == session.PhaseAwaitingConsent && s.Camera.Status == camera.StatusDenied
	})
	if s.Camera.Reason == "" {
		t.Error("denied camera has no reason")
	}

	if err := h.ctrl.Start(ctx); !errors.Is(err, session.ErrCameraNotReady) {
		t.Fatalf("start err = %v, want ErrCameraNotReady", err)
	}
	if got := h.ctrl.Snapshot().Phase; got != session.PhaseAwaitingConsent {
		t.Fatalf("phase = %s after rejected start", got)
	}

	if err := h.ctrl.RetryCamera(ctx); err != nil {
		t.Fatalf("retry camera: %v", err)
	}
	waitReady(t, h.ctrl)
	if dev.Requests() != 2 {
		t.Errorf("camera requests = %d, want 2", dev.Requests())
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("start after retry: %v", err)
	}
	waitPhase(t, h.ctrl, session.PhaseInProgress)
}

func TestCameraEndedBlocksStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), &attemptRepo{}, nil)
	waitReady(t, h.ctrl)

	h.ctrl.CameraEnded("track ended")
	waitFor(t, h.ctrl, "camera unavailable", func(s session.Snapshot) bool {
		return s.Camera.Status == camera.StatusUnavailable
	})
	if err := h.ctrl.Start(ctx); !errors.Is(err, session.ErrCameraNotReady) {
		t.Fatalf("start err = %v, want ErrCameraNotReady", err)
	}
	if h.device.LiveTracks() != 0 {
		t.Error("ended camera still has live tracks")
	}
}

func TestSubmitRacesExpiry(t *testing.T) {
	ctx := context.Background()
	attempts := &attemptRepo{gate: make(chan struct{})}
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), attempts, nil)
	waitReady(t, h.ctrl)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 59; i++ {
		h.clock.Advance(time.Second)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := h.ctrl.Submit(ctx); err != nil {
			t.Errorf("submit: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		h.clock.Advance(time.Second)
	}()
	wg.Wait()

	waitPhase(t, h.ctrl, session.PhaseSubmitting)
	if err := h.ctrl.Submit(ctx); err != nil {
		t.Errorf("submit while submitting: %v", err)
	}
	close(attempts.gate)

	waitPhase(t, h.ctrl, session.PhaseCompleted)
	if n := attempts.Calls(); n != 1 {
		t.Fatalf("insert calls = %d, want exactly 1", n)
	}
}

func TestFailedSubmissionCanRetry(t *testing.T) {
	ctx := context.Background()
	attempts := &attemptRepo{errs: []error{errors.New("connection reset")}}
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), attempts, nil)
	waitReady(t, h.ctrl)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.SelectAnswer(ctx, "Q2", "B"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatal(err)
	}

	s := waitPhase(t, h.ctrl, session.PhaseFailed)
	if s.Failure == nil || s.Failure.Kind != session.FailureSubmission || !s.Failure.Retryable {
		t.Fatalf("failure = %+v, want retryable submission failure", s.Failure)
	}
	if s.SubmissionAttempted {
		t.Error("submission flag not cleared after failure")
	}

	// The countdown is not resumed by a failure.
	h.clock.Advance(time.Minute)
	if got := h.ctrl.Snapshot().Phase; got != session.PhaseFailed {
		t.Fatalf("phase = %s after advancing a failed session", got)
	}

	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	waitPhase(t, h.ctrl, session.PhaseCompleted)
	saved := attempts.Saved()
	if attempts.Calls() != 2 || len(saved) != 1 || saved[0].Answers["Q2"] != "B" {
		t.Errorf("calls = %d saved = %v", attempts.Calls(), saved)
	}
}

func TestUnauthenticatedSubmission(t *testing.T) {
	ctx := context.Background()
	id := identity{err: errors.New("token expired")}
	attempts := &attemptRepo{}
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), attempts, id)
	waitReady(t, h.ctrl)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	s := waitPhase(t, h.ctrl, session.PhaseFailed)
	if s.Failure == nil || !s.Failure.Retryable {
		t.Fatalf("failure = %+v, want retryable", s.Failure)
	}
	if attempts.Calls() != 0 {
		t.Error("attempt inserted without a student id")
	}
}

func TestSubmitAfterTokenExpiry(t *testing.T) {
	ctx := context.Background()
	student := uuid.New()
	auth := service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})

	// Claims as validated at upgrade; the token has since expired.
	claims := &service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   student.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		TokenType: service.TokenTypeStudent,
	}
	attempts := &attemptRepo{errs: []error{errors.New("connection reset")}}
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), attempts, auth.Identity(claims))
	waitReady(t, h.ctrl)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.SelectAnswer(ctx, "Q1", "A"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	waitPhase(t, h.ctrl, session.PhaseFailed)

	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	s := waitPhase(t, h.ctrl, session.PhaseCompleted)
	if s.StudentID == nil || *s.StudentID != student {
		t.Errorf("student = %v, want %v", s.StudentID, student)
	}
	saved := attempts.Saved()
	if len(saved) != 1 || saved[0].Answers["Q1"] != "A" {
		t.Errorf("saved = %v, want answers kept across the retry", saved)
	}
}

func TestLoadFailures(t *testing.T) {
	testCases := []struct {
		name  string
		repo  *examRepo
		phase session.Phase
	}{
		{"not found", &examRepo{err: session.ErrExamNotFound}, session.PhaseFailed},
		{"backend error", &examRepo{err: errors.New("db down")}, session.PhaseFailed},
		{"no questions", &examRepo{exam: &model.Exam{ID: uuid.New(), DurationMinutes: 10}}, session.PhaseFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.repo, cameratest.NewDevice(), &attemptRepo{}, nil)
			s := waitPhase(t, h.ctrl, tc.phase)
			if s.Failure == nil || s.Failure.Kind != session.FailureLoad || s.Failure.Retryable {
				t.Fatalf("failure = %+v, want non-retryable load failure", s.Failure)
			}
			eventually(t, "camera released", func() bool { return h.device.LiveTracks() == 0 })
			if err := h.ctrl.Submit(context.Background()); !errors.Is(err, session.ErrWrongPhase) {
				t.Errorf("submit err = %v, want ErrWrongPhase", err)
			}
		})
	}
}

func TestZeroDurationFailsLoad(t *testing.T) {
	exam := twoChoiceExam(t)
	exam.DurationMinutes = 0
	h := newHarness(t, &examRepo{exam: exam}, cameratest.NewDevice(), &attemptRepo{}, nil)
	s := waitPhase(t, h.ctrl, session.PhaseFailed)
	if s.Failure == nil || s.Failure.Kind != session.FailureLoad {
		t.Fatalf("failure = %+v", s.Failure)
	}
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()
	exam := newExam(t, 5, []model.RawQuestion{
		{ID: "Q1", QuestionText: "Pick", Type: "mcq", OptionA: str("x"), OptionB: str("y"), CorrectAnswer: "A"},
		{ID: "Q2", QuestionText: "Explain", Type: "answerable"},
		{ID: "Q3", QuestionText: "Pick again", Type: "mcq", OptionA: str("x"), OptionB: str("y"), CorrectAnswer: "B"},
	})
	h := newHarness(t, &examRepo{exam: exam}, cameratest.NewDevice(), &attemptRepo{}, nil)
	waitReady(t, h.ctrl)

	if err := h.ctrl.SelectAnswer(ctx, "Q1", "A"); !errors.Is(err, session.ErrWrongPhase) {
		t.Fatalf("select before start err = %v, want ErrWrongPhase", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name      string
		do        func() error
		wantErr   error
		wantIndex int
	}{
		{"previous at first", func() error { return h.ctrl.Previous(ctx) }, session.ErrNoPreviousQuestion, 0},
		{"next unanswered mcq", func() error { return h.ctrl.Next(ctx) }, session.ErrAnswerRequired, 0},
		{"invalid letter", func() error { return h.ctrl.SelectAnswer(ctx, "Q1", "E") }, session.ErrInvalidAnswer, 0},
		{"unknown question", func() error { return h.ctrl.SelectAnswer(ctx, "Q9", "A") }, answer.ErrUnknownQuestion, 0},
		{"answer Q1", func() error { return h.ctrl.SelectAnswer(ctx, "Q1", "B") }, nil, 0},
		{"change Q1", func() error { return h.ctrl.SelectAnswer(ctx, "Q1", "A") }, nil, 0},
		{"next", func() error { return h.ctrl.Next(ctx) }, nil, 1},
		{"free answer not gated", func() error { return h.ctrl.Next(ctx) }, nil, 2},
		{"previous", func() error { return h.ctrl.Previous(ctx) }, nil, 1},
		{"jump out of range", func() error { return h.ctrl.Jump(ctx, 3) }, session.ErrIndexOutOfRange, 1},
		{"jump", func() error { return h.ctrl.Jump(ctx, 2) }, nil, 2},
	}
	for _, st := range steps {
		if err := st.do(); !errors.Is(err, st.wantErr) {
			t.Errorf("%s: err = %v, want %v", st.name, err, st.wantErr)
		}
		if got := h.ctrl.Snapshot().CurrentIndex; got != st.wantIndex {
			t.Errorf("%s: index = %d, want %d", st.name, got, st.wantIndex)
		}
	}

	s := h.ctrl.Snapshot()
	if s.Answers["Q1"] != "A" || s.AnsweredCount != 1 {
		t.Errorf("answers = %v", s.Answers)
	}
	if !s.Questions[0].Answered || s.Questions[1].Answered {
		t.Errorf("answered markers wrong: %+v", s.Questions)
	}
	if q, ok := s.CurrentQuestion(); !ok || q.ID != "Q3" {
		t.Errorf("current question = %+v", q)
	}

	if err := h.ctrl.SelectAnswer(ctx, "Q3", "B"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Next(ctx); err != nil {
		t.Fatalf("next on last question: %v", err)
	}
	waitPhase(t, h.ctrl, session.PhaseCompleted)
	if got := h.attempts.Saved()[0].Answers; len(got) != 2 {
		t.Errorf("submitted answers = %v", got)
	}
}

func TestDisposeReleasesEverything(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), &attemptRepo{}, nil)
	waitReady(t, h.ctrl)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Second)

	h.ctrl.Dispose()
	if h.device.LiveTracks() != 0 {
		t.Error("camera still live after dispose")
	}
	eventually(t, "ticker stopped", func() bool { return h.clock.Tickers() == 0 })

	select {
	case <-h.ctrl.Done():
	default:
		t.Error("event loop still running after dispose")
	}
	if err := h.ctrl.Next(ctx); !errors.Is(err, session.ErrDisposed) {
		t.Errorf("intent after dispose err = %v, want ErrDisposed", err)
	}
	h.ctrl.Dispose()
	if h.attempts.Calls() != 0 {
		t.Error("dispose submitted the attempt")
	}
}

func TestWaitSubmissionsOutlivesDispose(t *testing.T) {
	ctx := context.Background()
	attempts := &attemptRepo{gate: make(chan struct{})}
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), attempts, nil)
	waitReady(t, h.ctrl)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "insert started", func() bool { return attempts.Calls() == 1 })

	h.ctrl.Dispose()
	waited := make(chan struct{})
	go func() {
		h.ctrl.WaitSubmissions()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("WaitSubmissions returned while the insert was blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(attempts.gate)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitSubmissions did not return after the insert finished")
	}
	if len(attempts.Saved()) != 1 {
		t.Errorf("saved %d attempts, want 1", len(attempts.Saved()))
	}
}

func TestDisposeDuringCameraRequest(t *testing.T) {
	dev := cameratest.NewDevice()
	dev.Hold()
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, dev, &attemptRepo{}, nil)
	waitPhase(t, h.ctrl, session.PhaseAwaitingConsent)

	h.ctrl.Dispose()
	dev.Unblock()
	eventually(t, "late stream stopped", func() bool { return dev.LiveTracks() == 0 })
}

func TestDisposeWithoutOpen(t *testing.T) {
	c := session.New(uuid.New(), session.Deps{
		Exams:    &examRepo{},
		Attempts: &attemptRepo{},
		Identity: identity{},
		Camera:   cameratest.NewDevice(),
	}, session.Options{})
	c.Dispose()
	<-c.Done()
	c.Open()
	if err := c.Start(context.Background()); !errors.Is(err, session.ErrDisposed) {
		t.Errorf("start err = %v, want ErrDisposed", err)
	}
}

func TestPhaseEventsRecorded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &examRepo{exam: twoChoiceExam(t)}, cameratest.NewDevice(), &attemptRepo{}, nil)
	waitReady(t, h.ctrl)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	waitPhase(t, h.ctrl, session.PhaseCompleted)

	want := []string{"AWAITING_CONSENT", "IN_PROGRESS", "SUBMITTING", "COMPLETED"}
	got := h.events.Phases()
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phases = %v, want %v", got, want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	testCases := []struct {
		in   int
		want string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{3600, "01:00:00"},
		{5400, "01:30:00"},
		{-5, "00:00:00"},
	}
	for _, tc := range testCases {
		if got := session.FormatClock(tc.in); got != tc.want {
			t.Errorf("FormatClock(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
