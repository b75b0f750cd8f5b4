package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/netutil"
)

// ErrNotFound is returned by stores when no session exists for a user.
var ErrNotFound = errors.New("session not found")

const forgetTimeout = 2 * time.Second

// ErrNoSender is returned when an event arrives on a channel without a sender.
var ErrNoSender = errors.New("no sender for channel")

// Store persists sessions between events. Put writes every field except
// Challenges, which only grow through AppendChallenge or Complete.
type Store interface {
	Get(ctx context.Context, phone, botID string) (*Session, error)
	Put(ctx context.Context, s Session) error
	AppendChallenge(ctx context.Context, phone, botID string, c Challenge) error
	// Complete writes s and appends c in one atomic step: either both are
	// stored or neither is.
	Complete(ctx context.Context, s Session, c Challenge) error
	QueryByBot(ctx context.Context, botID string) ([]Session, error)
}

// Sender delivers one message to a channel address.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}

// Tracker records analytics events. Implementations must not block for long
// and never report failures to the caller.
type Tracker interface {
	Track(ctx context.Context, event string, props map[string]any)
}

// Guard filters duplicate deliveries and serialises events per user.
type Guard interface {
	// FirstDelivery reports false when key was already seen.
	FirstDelivery(ctx context.Context, key string) (bool, error)
	// Forget drops key so a redelivery of a failed event is processed.
	Forget(ctx context.Context, key string) error
	// Lock blocks until the user key is held or ctx ends.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Recorder receives per-event measurements.
type Recorder interface {
	ObserveEvent(channel, kind, outcome string, took time.Duration)
	ObserveSend(channel string, kind MessageKind, err error)
	ObserveStore(op string, took time.Duration, err error)
	ObserveChallenge(badge Badge)
}

// Analytics event names.
const (
	TrackButtonClick   = "Button_Click"
	TrackQuizCompleted = "Quiz_Completed"
)

// Service runs the machine for inbound events.
type Service struct {
	machine  *Machine
	store    Store
	senders  map[string]Sender
	tracker  Tracker
	guard    Guard
	recorder Recorder
	newID    func() string
	now      func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithSender registers the sender for a channel.
func WithSender(channel string, s Sender) ServiceOption {
	return func(svc *Service) {
		if s != nil {
			svc.senders[channel] = s
		}
	}
}

// WithTracker sets the analytics sink.
func WithTracker(t Tracker) ServiceOption {
	return func(svc *Service) {
		if t != nil {
			svc.tracker = t
		}
	}
}

// WithGuard enables duplicate filtering and per-user locking.
func WithGuard(g Guard) ServiceOption {
	return func(svc *Service) { svc.guard = g }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(svc *Service) {
		if r != nil {
			svc.recorder = r
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(svc *Service) {
		if fn != nil {
			svc.newID = fn
		}
	}
}

// WithServiceClock overrides time.Now for session timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// NewService wires the machine to its collaborators.
func NewService(machine *Machine, store Store, opts ...ServiceOption) *Service {
	svc := &Service{
		machine:  machine,
		store:    store,
		senders:  make(map[string]Sender),
		tracker:  nopTracker{},
		recorder: nopRecorder{},
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Process handles one inbound event to completion. Only store failures are
// returned; send failures are logged and counted.
func (s *Service) Process(ctx context.Context, in Inbound) (err error) {
	start := time.Now()
	rid := in.ID
	if rid == "" {
		rid = logger.NewRID()
	}
	ctx = logger.WithRID(ctx, rid)
	ctx = logger.WithEventMeta(ctx, in.Channel, in.From, in.BotID)

	kind := KindUnrecognized
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "fail"
		}
		took := logger.Took(start)
		s.recorder.ObserveEvent(in.Channel, kind.String(), outcome, took)
		level := slog.LevelInfo
		attrs := []slog.Attr{
			slog.String("kind", in.Kind.String()),
			slog.String("rule", kind.String()),
			slog.String("outcome", outcome),
			slog.Duration("duration", took),
		}
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.Any("err", err))
		}
		logger.LogEvent(ctx, logger.Component(logger.CompQuiz), level, "event.handled", attrs...)
	}()

	sender, ok := s.senders[in.Channel]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoSender, in.Channel)
	}

	if s.guard != nil {
		if in.ID != "" {
			key := in.Channel + ":" + in.BotID + ":" + in.ID
			first, gerr := s.guard.FirstDelivery(ctx, key)
			switch {
			case gerr != nil:
				logger.Warn(ctx, logger.CompGuard, "dedupe.fail", slog.Any("err", gerr))
			case !first:
				outcome = "noop"
				logger.Info(ctx, logger.CompGuard, "dedupe.hit", slog.String("status", "duplicate"))
				return nil
			default:
				defer func() {
					if err != nil {
						s.forget(ctx, key)
					}
				}()
			}
		}
		unlock, lerr := s.guard.Lock(ctx, in.BotID+":"+in.From)
		if lerr != nil {
			if ctx.Err() != nil {
				outcome = "cancelled"
				return ctx.Err()
			}
			logger.Warn(ctx, logger.CompGuard, "lock.fail", slog.Any("err", lerr))
		} else {
			defer unlock()
		}
	}

	sess, created, err := s.load(ctx, in)
	if err != nil {
		return err
	}

	if in.Kind == InputButton {
		s.tracker.Track(ctx, TrackButtonClick, map[string]any{
			"distinct_id": in.From,
			"button":      in.Body,
			"botID":       in.BotID,
		})
	}

	res := s.machine.Transition(sess, in)
	kind = res.Event.Kind
	if res.Miss != "" {
		logger.Warn(ctx, logger.CompQuiz, "catalog.miss",
			slog.String("rule", kind.String()),
			slog.String("missing", res.Miss),
			slog.String("topic", sess.SelectedMainTopic),
			slog.String("subtopic", sess.SelectedSubtopic),
			slog.String("set", sess.SelectedSet),
		)
	}

	next := res.Session
	next.UpdatedAt = s.now()
	switch {
	case res.Challenge != nil:
		c := *res.Challenge
		if err := s.timed(ctx, "complete", func() error { return s.store.Complete(ctx, next, c) }); err != nil {
			return fmt.Errorf("complete quiz: %w", err)
		}
	case res.Persist || created:
		if err := s.timed(ctx, "put", func() error { return s.store.Put(ctx, next) }); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	if res.Challenge != nil {
		c := *res.Challenge
		s.recorder.ObserveChallenge(c.Badge)
		s.tracker.Track(ctx, TrackQuizCompleted, map[string]any{
			"distinct_id": in.From,
			"botID":       in.BotID,
			"topic":       c.Topic,
			"subtopic":    c.Subtopic,
			"level":       c.Level,
			"set":         c.Set,
			"score":       c.Score,
			"badge":       string(c.Badge),
		})
	}

	messages := res.Messages
	if res.Leaderboard != nil {
		messages = append(messages, s.leaderboard(ctx, *res.Leaderboard)...)
	}
	if res.Noop() {
		outcome = "noop"
	}
	if !s.send(ctx, sender, in, messages) {
		outcome = "fail"
	}
	return nil
}

func (s *Service) load(ctx context.Context, in Inbound) (Session, bool, error) {
	var sess *Session
	err := s.timed(ctx, "get", func() error {
		var gerr error
		sess, gerr = s.store.Get(ctx, in.From, in.BotID)
		return gerr
	})
	switch {
	case errors.Is(err, ErrNotFound):
		now := s.now()
		logger.Info(ctx, logger.CompQuiz, "session.created")
		return NewSession(s.newID(), in.From, in.BotID, now), true, nil
	case err != nil:
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	return *sess, false, nil
}

func (s *Service) leaderboard(ctx context.Context, q LeaderboardQuery) []Message {
	var sessions []Session
	err := s.timed(ctx, "query_by_bot", func() error {
		var qerr error
		sessions, qerr = s.store.QueryByBot(ctx, q.BotID)
		return qerr
	})
	if err != nil {
		logger.Error(ctx, logger.CompQuiz, "leaderboard.fail", slog.Any("err", err))
		return LeaderboardUnavailable()
	}
	entries := Rank(sessions, q, LeaderboardSize)
	logger.Debug(ctx, logger.CompQuiz, "leaderboard.ranked",
		slog.Int("users", len(sessions)),
		slog.Int("entries", len(entries)),
	)
	return RenderLeaderboard(entries)
}

// send delivers messages in order and stops at the first failure so the
// user never sees a later reply without the earlier one.
func (s *Service) send(ctx context.Context, sender Sender, in Inbound, messages []Message) bool {
	for i, msg := range messages {
		err := sender.Send(ctx, in.From, msg)
		s.recorder.ObserveSend(in.Channel, msg.Kind, err)
		if err != nil {
			logger.Error(ctx, logger.CompQuiz, "reply.fail",
				slog.String("message_kind", string(msg.Kind)),
				slog.Int("index", i),
				slog.Int("skipped", len(messages)-i-1),
				slog.String("error_kind", netutil.ClassifyError(err)),
				slog.String("err", netutil.SanitizeError(err)),
			)
			return false
		}
	}
	return true
}

// forget releases a delivery id after a failed event so the platform's
// redelivery is not dropped as a duplicate.
func (s *Service) forget(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forgetTimeout)
	defer cancel()
	if err := s.guard.Forget(ctx, key); err != nil {
		logger.Warn(ctx, logger.CompGuard, "dedupe.forget.fail", slog.Any("err", err))
	}
}

func (s *Service) timed(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	took := time.Since(start)
	s.recorder.ObserveStore(op, took, err)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Error(ctx, logger.CompStore, "store."+op+".fail",
			slog.Duration("duration", took),
			slog.Any("err", err),
		)
	}
	return err
}

type nopTracker struct{}

func (nopTracker) Track(context.Context, string, map[string]any) {}

type nopRecorder struct{}

func (nopRecorder) ObserveEvent(string, string, string, time.Duration) {}
func (nopRecorder) ObserveSend(string, MessageKind, error)             {}
func (nopRecorder) ObserveStore(string, time.Duration, error)          {}
func (nopRecorder) ObserveChallenge(Badge)                             {}
