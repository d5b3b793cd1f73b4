// Package outbox moves booking events off the request path. Handlers
// enqueue without blocking; Run delivers each event to every sink with
// bounded retries.
package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/cinema-seat-booking/internal/domain"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
)

const EventBookingConfirmed = "booking.confirmed"

type BookingEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	BookingID  uuid.UUID `json:"booking_id"`
	Theater    string    `json:"theater"`
	Room       string    `json:"room"`
	Movie      string    `json:"movie"`
	Seats      []int     `json:"seats"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBookingEvent(b domain.Booking) BookingEvent {
	return BookingEvent{
		ID:         uuid.New(),
		Type:       EventBookingConfirmed,
		BookingID:  b.ID,
		Theater:    b.Theater,
		Room:       b.Room,
		Movie:      b.Movie,
		Seats:      b.Seats,
		OccurredAt: b.BookedAt,
	}
}

type Sink interface {
	Name() string
	Publish(ctx context.Context, ev BookingEvent) error
}

type Publisher struct {
	events     chan BookingEvent
	sinks      []Sink
	logger     observability.Logger
	maxRetries int
	backoff    time.Duration
}

func NewPublisher(sinks []Sink, logger observability.Logger, buffer int) *Publisher {
	return &Publisher{
		events:     make(chan BookingEvent, buffer),
		sinks:      sinks,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Enqueue never blocks. It reports false when the event had to be dropped.
func (p *Publisher) Enqueue(b domain.Booking) bool {
	if len(p.sinks) == 0 {
		return true
	}
	select {
	case p.events <- NewBookingEvent(b):
		return true
	default:
		observability.EventsDropped.Inc()
		p.logger.WithField("booking_id", b.ID).Warn("outbox full, dropping booking event")
		return false
	}
}

// Run delivers events until ctx is done, then flushes what is still queued
// within drainTimeout.
func (p *Publisher) Run(ctx context.Context, drainTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			p.drain(drainTimeout)
			return
		case ev := <-p.events:
			p.deliver(ctx, ev)
		}
	}
}

func (p *Publisher) drain(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		select {
		case ev := <-p.events:
			p.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, ev BookingEvent) {
	for _, sink := range p.sinks {
		if err := p.publishWithRetry(ctx, sink, ev); err != nil {
			observability.EventsDropped.Inc()
			p.logger.WithField("sink", sink.Name()).WithField("event_id", ev.ID).WithError(err).
				Error("failed to publish booking event after retries")
		}
	}
}

func (p *Publisher) publishWithRetry(ctx context.Context, sink Sink, ev BookingEvent) error {
	var err error
	for i := 0; i < p.maxRetries; i++ {
		if err = sink.Publish(ctx, ev); err == nil {
			return nil
		}
		if i == p.maxRetries-1 {
			break
		}
		observability.EventPublishRetries.Inc()
		select {
		case <-ctx.Done():
			return errors.CombineErrors(err, ctx.Err())
		case <-time.After(time.Duration(1<<i) * p.backoff):
		}
	}
	return errors.Wrapf(err, "failed after %d attempts", p.maxRetries)
}
