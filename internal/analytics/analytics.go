// Package analytics ships tracking events off the request path.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/sender"
)

// Event is one tracked occurrence.
type Event struct {
	ID    string         `json:"id"`
	Name  string         `json:"event"`
	At    time.Time      `json:"timestamp"`
	Props map[string]any `json:"properties"`
}

// DistinctID returns the user the event belongs to.
func (e Event) DistinctID() string {
	if v, ok := e.Props["distinct_id"].(string); ok {
		return v
	}
	return ""
}

// Sink delivers events to their destination.
type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Tracker enqueues events on a dispatcher and never blocks the caller.
type Tracker struct {
	sink  Sink
	queue *sender.Dispatcher
	newID func() string
	now   func() time.Time
}

// NewTracker wraps sink with an async queue.
func NewTracker(sink Sink, opts sender.Options) *Tracker {
	if opts.Component == "" {
		opts.Component = logger.CompAnalytics
	}
	if r, ok := sink.(interface{ Retryable(error) bool }); ok && opts.Retryable == nil {
		opts.Retryable = r.Retryable
	}
	return &Tracker{
		sink:  sink,
		queue: sender.NewDispatcher(opts),
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Track records event with props. Failures are logged only.
func (t *Tracker) Track(ctx context.Context, event string, props map[string]any) {
	e := Event{ID: t.newID(), Name: event, At: t.now().UTC(), Props: props}
	err := t.queue.Enqueue(ctx, sender.Job{
		Action: "track",
		Target: event,
		Run:    func(jctx context.Context) error { return t.sink.Publish(jctx, e) },
	})
	if err != nil {
		logger.Warn(ctx, logger.CompAnalytics, "track.drop",
			slog.String("event_name", event),
			slog.Any("err", err),
		)
	}
}

// Close drains queued events and closes the sink.
func (t *Tracker) Close() error {
	t.queue.Close()
	return t.sink.Close()
}

// LogSink writes events to the structured log.
type LogSink struct{}

// Publish logs e at info level.
func (LogSink) Publish(ctx context.Context, e Event) error {
	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.String("event_name", e.Name),
	}
	for k, v := range e.Props {
		if k == "distinct_id" {
			continue
		}
		attrs = append(attrs, slog.Any("prop_"+k, v))
	}
	logger.Info(ctx, logger.CompAnalytics, "track", attrs...)
	return nil
}

// Close is a no-op.
func (LogSink) Close() error { return nil }
