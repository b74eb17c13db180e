// Package session runs one exam-taking session: consent and camera check,
// the timed answering phase and a single submission.
//
// All state changes happen on one event loop goroutine. Collaborator calls
// (exam load, camera acquisition, submission) run asynchronously and report
// back as events, so a timer tick may interleave with an outstanding load or
// submission but never with another state change.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/answer"
	"github.com/stemsi/exstem-proctor/internal/camera"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	defaultLoadTimeout   = 15 * time.Second
	defaultSubmitTimeout = 30 * time.Second
	eventBuffer          = 64
)

// Submission triggers, used for logging and metrics.
const (
	TriggerManual = "manual"
	TriggerFinish = "finish"
	TriggerExpiry = "expiry"
	TriggerRetry  = "retry"
)

// Deps are the external collaborators of a session.
type Deps struct {
	Exams    ExamRepository
	Attempts AttemptRepository
	Identity IdentityProvider
	Camera   camera.Device
}

// Options tune a session. The zero value is usable.
type Options struct {
	SessionID     uuid.UUID
	Clock         countdown.Clock
	Logger        zerolog.Logger
	Events        EventSink
	LoadTimeout   time.Duration
	SubmitTimeout time.Duration

	// OnChange is called on the event loop after every processed event.
	// It must not call back into the Controller's intent methods.
	OnChange func(Snapshot)
}

// Controller is the session state machine.
type Controller struct {
	id     uuid.UUID
	examID uuid.UUID
	deps   Deps
	opts   Options
	log    zerolog.Logger
	clock  countdown.Clock

	camera *camera.Manager
	timer  *countdown.Timer

	events chan any
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	openOnce    sync.Once
	disposeOnce sync.Once
	submits     sync.WaitGroup
	opened      bool
	openMu      sync.Mutex

	snapMu sync.RWMutex
	snap   Snapshot

	// Owned by the event loop.
	phase               Phase
	exam                *model.Exam
	store               *answer.Store
	currentIndex        int
	secondsRemaining    int
	submissionAttempted bool
	studentID           *uuid.UUID
	attemptID           *uuid.UUID
	failure             *Failure
	camStatus           camera.Status
	camReason           string
	acquiring           bool
}

// New creates a Controller for examID. Call Open to start it and Dispose on
// every exit path.
func New(examID uuid.UUID, deps Deps, opts Options) *Controller {
	if opts.SessionID == uuid.Nil {
		opts.SessionID = uuid.New()
	}
	if opts.Clock == nil {
		opts.Clock = countdown.SystemClock()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}

	log := opts.Logger.With().
		Str("component", "session").
		Str("session_id", opts.SessionID.String()).
		Str("exam_id", examID.String()).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		id:        opts.SessionID,
		examID:    examID,
		deps:      deps,
		opts:      opts,
		log:       log,
		clock:     opts.Clock,
		camera:    camera.NewManager(deps.Camera, log),
		timer:     countdown.New(opts.Clock),
		events:    make(chan any, eventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		phase:     PhaseInitializing,
		camStatus: camera.StatusIdle,
	}
	c.snap = c.snapshot()
	return c
}

// ID returns the session id.
func (c *Controller) ID() uuid.UUID { return c.id }

// Open starts the event loop, the exam load and the camera acquisition.
func (c *Controller) Open() {
	c.openOnce.Do(func() {
		c.openMu.Lock()
		if c.ctx.Err() != nil {
			c.openMu.Unlock()
			return
		}
		c.opened = true
		c.openMu.Unlock()

		metrics.ActiveSessions.Inc()
		go c.loop()
	})
}

// Dispose stops the countdown and releases the camera synchronously, then
// shuts the event loop down. It is safe to call from any goroutine, more
// than once, and in any phase. A submission already in flight is allowed to
// finish so the attempt is not lost.
func (c *Controller) Dispose() {
	c.disposeOnce.Do(func() {
		c.timer.Stop()
		c.camera.Close()

		c.openMu.Lock()
		c.cancel()
		opened := c.opened
		c.openMu.Unlock()

		if opened {
			<-c.done
			metrics.ActiveSessions.Dec()
		} else {
			close(c.done)
		}
		c.log.Info().Msg("Session disposed")
	})
}

// WaitSubmissions blocks until every submission started by this session has
// finished. Submissions outlive Dispose and are bounded by SubmitTimeout.
func (c *Controller) WaitSubmissions() { c.submits.Wait() }

// Done is closed when the event loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// ─── Intents ────────────────────────────────────────────────────────────

type intentKind string

const (
	intentStart       intentKind = "start"
	intentSelect      intentKind = "select"
	intentNext        intentKind = "next"
	intentPrevious    intentKind = "previous"
	intentJump        intentKind = "jump"
	intentSubmit      intentKind = "submit"
	intentRetryCamera intentKind = "retry_camera"
)

type intent struct {
	kind       intentKind
	questionID string
	value      string
	index      int
	reply      chan error
}

// Start begins the timed phase. It fails with ErrCameraNotReady unless the
// camera has been granted.
func (c *Controller) Start(ctx context.Context) error {
	return c.dispatch(ctx, intent{kind: intentStart})
}

// SelectAnswer records value for questionID without moving the cursor.
// A blank value clears the answer.
func (c *Controller) SelectAnswer(ctx context.Context, questionID, value string) error {
	return c.dispatch(ctx, intent{kind: intentSelect, questionID: questionID, value: value})
}

// Next advances to the next question, or submits from the last one.
func (c *Controller) Next(ctx context.Context) error {
	return c.dispatch(ctx, intent{kind: intentNext})
}

// Previous moves back one question.
func (c *Controller) Previous(ctx context.Context) error {
	return c.dispatch(ctx, intent{kind: intentPrevious})
}

// Jump moves the cursor to index, as the question grid does.
func (c *Controller) Jump(ctx context.Context, index int) error {
	return c.dispatch(ctx, intent{kind: intentJump, index: index})
}

// Submit submits the attempt. It is a no-op while a submission is in flight
// and retries after a failed submission.
func (c *Controller) Submit(ctx context.Context) error {
	return c.dispatch(ctx, intent{kind: intentSubmit})
}

// RetryCamera asks for the camera again after a denial or failure.
func (c *Controller) RetryCamera(ctx context.Context) error {
	return c.dispatch(ctx, intent{kind: intentRetryCamera})
}

// CameraEnded reports that the device stopped the stream on its own.
func (c *Controller) CameraEnded(reason string) {
	c.post(cameraEndedEvent{reason: reason})
}

func (c *Controller) dispatch(ctx context.Context, in intent) error {
	in.reply = make(chan error, 1)

	select {
	case c.events <- in:
	case <-c.ctx.Done():
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-in.reply:
		return err
	case <-c.done:
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Event loop ─────────────────────────────────────────────────────────

type loadedEvent struct {
	exam *model.Exam
	err  error
}

type cameraEvent struct {
	res camera.Result
}

type cameraEndedEvent struct {
	reason string
}

type tickEvent struct {
	remaining int
}

type expireEvent struct{}

type submittedEvent struct {
	attempt *model.Attempt
	trigger string
	err     error
}

func (c *Controller) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) loop() {
	defer close(c.done)

	c.log.Info().Msg("Session opened")
	c.beginLoad()
	c.beginAcquire()
	c.publish()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
			c.publish()
		}
	}
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case intent:
		e.reply <- c.apply(e)
	case loadedEvent:
		c.onLoaded(e)
	case cameraEvent:
		c.onCamera(e.res)
	case cameraEndedEvent:
		c.onCameraEnded(e.reason)
	case tickEvent:
		if c.phase == PhaseInProgress && e.remaining < c.secondsRemaining {
			c.secondsRemaining = e.remaining
		}
	case expireEvent:
		if c.phase == PhaseInProgress {
			c.secondsRemaining = 0
			c.log.Info().Msg("Time is up")
			c.beginSubmit(TriggerExpiry)
		}
	case submittedEvent:
		c.onSubmitted(e)
	}
}

func (c *Controller) publish() {
	s := c.snapshot()
	c.snapMu.Lock()
	c.snap = s
	c.snapMu.Unlock()
	if c.opts.OnChange != nil {
		c.opts.OnChange(s)
	}
}

func (c *Controller) setPhase(p Phase) {
	if c.phase == p {
		return
	}
	c.log.Info().
		Str("from", string(c.phase)).
		Str("to", string(p)).
		Msg("Phase changed")
	c.phase = p
	metrics.PhaseTransitions.WithLabelValues(string(p)).Inc()
	c.record(model.ProctorEventPhase, string(p))
}

func (c *Controller) record(kind model.ProctorEventKind, detail string) {
	if c.opts.Events == nil {
		return
	}
	c.opts.Events.Record(model.ProctorEvent{
		SessionID:  c.id,
		ExamID:     c.examID,
		StudentID:  c.studentID,
		Kind:       kind,
		Detail:     detail,
		RecordedAt: c.clock.Now().UTC(),
	})
}

// ─── Loading ────────────────────────────────────────────────────────────

func (c *Controller) beginLoad() {
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.LoadTimeout)
		defer cancel()
		exam, err := c.deps.Exams.GetExam(ctx, c.examID)
		c.post(loadedEvent{exam: exam, err: err})
	}()
}

func (c *Controller) onLoaded(e loadedEvent) {
	if c.phase != PhaseInitializing {
		return
	}

	switch {
	case e.err != nil:
		c.log.Error().Err(e.err).Msg("Exam load failed")
		c.fail(FailureLoad, loadReason(e.err), false)
		return
	case e.exam == nil || len(e.exam.Questions) == 0:
		c.fail(FailureLoad, "exam has no questions", false)
		return
	case e.exam.DurationMinutes <= 0:
		c.fail(FailureLoad, "exam has no valid duration", false)
		return
	}

	c.exam = e.exam
	c.store = answer.NewStore(e.exam.QuestionIDs())
	c.currentIndex = 0
	c.secondsRemaining = e.exam.DurationSeconds()
	c.setPhase(PhaseAwaitingConsent)
}

func loadReason(err error) string {
	if errors.Is(err, ErrExamNotFound) {
		return "exam not found"
	}
	return "failed to load exam"
}

// ─── Camera ─────────────────────────────────────────────────────────────

func (c *Controller) beginAcquire() {
	c.acquiring = true
	c.camStatus = camera.StatusPending
	c.camReason = ""
	go func() {
		res := c.camera.Acquire(c.ctx)
		c.post(cameraEvent{res: res})
	}()
}

func (c *Controller) onCamera(res camera.Result) {
	c.acquiring = false
	metrics.CameraAcquisitions.WithLabelValues(string(res.Status)).Inc()

	switch c.phase {
	case PhaseSubmitting, PhaseCompleted, PhaseFailed:
		// The session no longer needs the camera.
		c.camera.Close()
		c.camStatus, c.camReason = camera.StatusIdle, ""
		return
	}

	c.camStatus, c.camReason = res.Status, res.Reason
	switch res.Status {
	case camera.StatusReady:
		c.record(model.ProctorEventCameraReady, "")
	case camera.StatusDenied:
		c.record(model.ProctorEventCameraDenied, res.Reason)
	default:
		c.record(model.ProctorEventCameraUnavailable, res.Reason)
	}
}

func (c *Controller) onCameraEnded(reason string) {
	if reason == "" {
		reason = "camera stream ended"
	}
	c.camera.MarkEnded(reason)
	if c.phase == PhaseSubmitting || c.phase.Terminal() {
		return
	}
	c.camStatus, c.camReason = camera.StatusUnavailable, reason
	c.log.Warn().Str("reason", reason).Msg("Camera stream ended")
	c.record(model.ProctorEventCameraEnded, reason)
}

func (c *Controller) releaseCamera() {
	wasLive := c.camera.Live()
	c.camera.Close()
	c.camStatus, c.camReason = camera.StatusIdle, ""
	if wasLive {
		c.record(model.ProctorEventCameraReleased, "")
	}
}

// ─── Intent handling ────────────────────────────────────────────────────

func (c *Controller) apply(in intent) error {
	switch in.kind {
	case intentStart:
		return c.start()
	case intentSelect:
		return c.selectAnswer(in.questionID, in.value)
	case intentNext:
		return c.next()
	case intentPrevious:
		return c.previous()
	case intentJump:
		return c.jump(in.index)
	case intentSubmit:
		return c.submit()
	case intentRetryCamera:
		return c.retryCamera()
	default:
		return fmt.Errorf("unknown intent %q", in.kind)
	}
}

func (c *Controller) start() error {
	if c.phase != PhaseAwaitingConsent {
		return ErrWrongPhase
	}
	if c.camStatus != camera.StatusReady || !c.camera.Live() {
		return ErrCameraNotReady
	}

	err := c.timer.Start(c.secondsRemaining,
		func(remaining int) { c.post(tickEvent{remaining: remaining}) },
		func() { c.post(expireEvent{}) },
	)
	if err != nil {
		return fmt.Errorf("start countdown: %w", err)
	}
	c.setPhase(PhaseInProgress)
	return nil
}

func (c *Controller) selectAnswer(questionID, value string) error {
	if c.phase != PhaseInProgress {
		return ErrWrongPhase
	}
	q, ok := c.question(questionID)
	if !ok {
		return answer.ErrUnknownQuestion
	}
	if value != "" && !q.AcceptsAnswer(value) {
		return ErrInvalidAnswer
	}
	return c.store.Set(questionID, value)
}

func (c *Controller) next() error {
	if c.phase != PhaseInProgress {
		return ErrWrongPhase
	}
	q := c.exam.Questions[c.currentIndex]
	if q.Kind() == model.QuestionKindMultipleChoice && !c.store.Has(q.ID) {
		return ErrAnswerRequired
	}
	if c.currentIndex == len(c.exam.Questions)-1 {
		c.beginSubmit(TriggerFinish)
		return nil
	}
	c.currentIndex++
	return nil
}

func (c *Controller) previous() error {
	if c.phase != PhaseInProgress {
		return ErrWrongPhase
	}
	if c.currentIndex == 0 {
		return ErrNoPreviousQuestion
	}
	c.currentIndex--
	return nil
}

func (c *Controller) jump(index int) error {
	if c.phase != PhaseInProgress {
		return ErrWrongPhase
	}
	if index < 0 || index >= len(c.exam.Questions) {
		return ErrIndexOutOfRange
	}
	c.currentIndex = index
	return nil
}

func (c *Controller) submit() error {
	switch {
	case c.phase == PhaseInProgress:
		c.beginSubmit(TriggerManual)
		return nil
	case c.phase == PhaseSubmitting:
		return nil
	case c.phase == PhaseFailed && c.failure != nil && c.failure.Retryable:
		c.beginSubmit(TriggerRetry)
		return nil
	default:
		return ErrWrongPhase
	}
}

func (c *Controller) retryCamera() error {
	if c.phase != PhaseInitializing && c.phase != PhaseAwaitingConsent {
		return ErrWrongPhase
	}
	if c.acquiring || (c.camStatus == camera.StatusReady && c.camera.Live()) {
		return nil
	}
	c.beginAcquire()
	return nil
}

func (c *Controller) question(id string) (model.Question, bool) {
	for _, q := range c.exam.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}

// ─── Submission ─────────────────────────────────────────────────────────

func (c *Controller) beginSubmit(trigger string) {
	if c.submissionAttempted {
		return
	}
	c.submissionAttempted = true
	c.failure = nil
	c.setPhase(PhaseSubmitting)
	c.timer.Stop()
	c.releaseCamera()

	answers := c.store.Snapshot()
	submittedAt := c.clock.Now().UTC()
	c.log.Info().
		Str("trigger", trigger).
		Int("answered", len(answers)).
		Msg("Submitting attempt")

	c.submits.Add(1)
	go func() {
		defer c.submits.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.opts.SubmitTimeout)
		defer cancel()

		studentID, err := c.deps.Identity.CurrentUserID(ctx)
		if err != nil {
			c.post(submittedEvent{trigger: trigger, err: fmt.Errorf("%w: %v", ErrUnauthenticated, err)})
			return
		}

		attempt := &model.Attempt{
			ID:          uuid.New(),
			ExamID:      c.examID,
			StudentID:   studentID,
			Answers:     answers,
			SubmittedAt: submittedAt,
			Score:       model.PlaceholderScore,
		}
		err = c.deps.Attempts.InsertAttempt(ctx, attempt)
		if err != nil && c.ctx.Err() != nil {
			c.log.Error().Err(err).Msg("Submission failed after session closed")
		}
		c.post(submittedEvent{attempt: attempt, trigger: trigger, err: err})
	}()
}

func (c *Controller) onSubmitted(e submittedEvent) {
	if c.phase != PhaseSubmitting {
		return
	}

	if e.err != nil {
		metrics.Submissions.WithLabelValues(e.trigger, "error").Inc()
		c.log.Error().Err(e.err).Str("trigger", e.trigger).Msg("Submission failed")
		c.submissionAttempted = false
		c.fail(FailureSubmission, "failed to submit attempt", true)
		return
	}

	metrics.Submissions.WithLabelValues(e.trigger, "ok").Inc()
	id, student := e.attempt.ID, e.attempt.StudentID
	c.attemptID = &id
	c.studentID = &student
	c.setPhase(PhaseCompleted)
}

func (c *Controller) fail(kind FailureKind, reason string, retryable bool) {
	c.failure = &Failure{Kind: kind, Reason: reason, Retryable: retryable}
	c.timer.Stop()
	c.releaseCamera()
	c.setPhase(PhaseFailed)
}
