package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const (
	publishBuffer  = 1024
	publishTimeout = 2 * time.Second
)

// ProctorBus fans a serialized event out to the live monitor channel and the
// persistence queue.
type ProctorBus interface {
	Deliver(ctx context.Context, channel, queue string, payload []byte) error
}

// RedisBus implements ProctorBus with one pipeline per event.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus wraps rdb.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Deliver(ctx context.Context, channel, queue string, payload []byte) error {
	pipe := b.rdb.Pipeline()
	pipe.Publish(ctx, channel, payload)
	pipe.RPush(ctx, queue, payload)
	_, err := pipe.Exec(ctx)
	return err
}

// ProctorPublisher buffers proctor events from every session and delivers
// them from a single goroutine, so recording never blocks a session loop.
type ProctorPublisher struct {
	bus    ProctorBus
	events chan model.ProctorEvent
	log    zerolog.Logger
}

// NewProctorPublisher creates a publisher. Call Run to start delivering.
func NewProctorPublisher(bus ProctorBus, log zerolog.Logger) *ProctorPublisher {
	return &ProctorPublisher{
		bus:    bus,
		events: make(chan model.ProctorEvent, publishBuffer),
		log:    log.With().Str("component", "proctor_publisher").Logger(),
	}
}

// Record queues ev. When the buffer is full the event is dropped.
func (p *ProctorPublisher) Record(ev model.ProctorEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn().
			Str("exam_id", ev.ExamID.String()).
			Str("kind", string(ev.Kind)).
			Msg("Proctor event buffer full, dropping event")
	}
}

// ForStudent returns a sink that stamps studentID on events that do not
// carry one yet.
func (p *ProctorPublisher) ForStudent(studentID uuid.UUID) session.EventSink {
	return &StudentSink{pub: p, studentID: studentID}
}

// Run delivers events until ctx is cancelled, then drains what is buffered.
func (p *ProctorPublisher) Run(ctx context.Context) {
	p.log.Info().Msg("Proctor publisher started")
	for {
		select {
		case ev := <-p.events:
			p.deliver(context.Background(), ev)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

func (p *ProctorPublisher) drain() {
	for {
		select {
		case ev := <-p.events:
			p.deliver(context.Background(), ev)
		default:
			p.log.Info().Msg("Proctor publisher stopped")
			return
		}
	}
}

func (p *ProctorPublisher) deliver(parent context.Context, ev model.ProctorEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("Marshal proctor event")
		return
	}

	ctx, cancel := context.WithTimeout(parent, publishTimeout)
	defer cancel()

	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := p.bus.Deliver(ctx, channel, config.WorkerKey.PersistProctorEventsQueue, payload); err != nil {
		p.log.Error().Err(err).
			Str("exam_id", ev.ExamID.String()).
			Str("kind", string(ev.Kind)).
			Msg("Failed to deliver proctor event")
	}
}

// StudentSink is a per-connection session.EventSink.
type StudentSink struct {
	pub       *ProctorPublisher
	studentID uuid.UUID
}

// Record implements session.EventSink.
func (s *StudentSink) Record(ev model.ProctorEvent) {
	if ev.StudentID == nil {
		id := s.studentID
		ev.StudentID = &id
	}
	s.pub.Record(ev)
}
