package quiz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/quizbot/internal/content"
)

func newTestService(t *testing.T, store *fakeStore, sender *fakeSender, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{
		WithSender("test", sender),
		WithIDGenerator(func() string { return "new-id" }),
		WithServiceClock(func() time.Time { return testNow }),
	}
	return NewService(newTestMachine(t), store, append(base, opts...)...)
}

func TestProcessCreatesSessionOnFirstContact(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	svc := newTestService(t, store, sender)

	if err := svc.Process(context.Background(), text("hi")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	s, err := store.Get(context.Background(), "919800000001", "bot-1")
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if s.ID != "new-id" || s.Language != DefaultLanguage {
		t.Fatalf("session = %+v", s)
	}
	if len(sender.sent) != 2 || sender.sent[1].Body != namePromptText {
		t.Fatalf("sent = %s", bodies(sender.sent))
	}
}

func TestProcessIgnoresUnknownButton(t *testing.T) {
	store := newFakeStore()
	store.sessions[store.key("919800000001", "bot-1")] = namedSession()
	sender := &fakeSender{}
	svc := newTestService(t, store, sender)

	if err := svc.Process(context.Background(), button("Nope")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if store.puts != 0 || len(sender.sent) != 0 {
		t.Fatalf("no-op wrote %d sessions and sent %d messages", store.puts, len(sender.sent))
	}
}

func TestProcessFullQuizAppendsOneChallenge(t *testing.T) {
	store := newFakeStore()
	store.sessions[store.key("919800000001", "bot-1")] = quizSession("1", content.LevelEasy)
	sender := &fakeSender{}
	tracker := &fakeTracker{}
	svc := newTestService(t, store, sender, WithTracker(tracker))

	for i := 0; i < QuestionsPerQuiz; i++ {
		if err := svc.Process(context.Background(), button("right-"+string(rune('0'+i)))); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	if len(store.appended) != 1 || store.appended[0].Badge != BadgeGold {
		t.Fatalf("appended = %+v", store.appended)
	}
	s, _ := store.Get(context.Background(), "919800000001", "bot-1")
	if s.QuestionsAnswered != QuestionsPerQuiz || s.Score != QuestionsPerQuiz || len(s.Challenges) != 1 {
		t.Fatalf("stored session = %+v", s)
	}
	last := sender.sent[len(sender.sent)-1]
	if !strings.Contains(last.Body, "**10** out of **10**") {
		t.Fatalf("final message = %q", last.Body)
	}
	clicks, completed := 0, 0
	for _, e := range tracker.events {
		switch e {
		case TrackButtonClick:
			clicks++
		case TrackQuizCompleted:
			completed++
		}
	}
	if clicks != QuestionsPerQuiz || completed != 1 {
		t.Fatalf("tracked clicks=%d completed=%d", clicks, completed)
	}

	if err := svc.Process(context.Background(), button(ButtonViewChallenges)); err != nil {
		t.Fatalf("view challenges: %v", err)
	}
	board := sender.sent[len(sender.sent)-2].Body
	if !strings.Contains(board, "1. Asha") || !strings.Contains(board, "Score: 10") {
		t.Fatalf("leaderboard = %q", board)
	}
}

func TestProcessViewChallengesEmpty(t *testing.T) {
	store := newFakeStore()
	store.sessions[store.key("919800000001", "bot-1")] = quizSession("3", content.LevelHard)
	sender := &fakeSender{}
	svc := newTestService(t, store, sender)

	if err := svc.Process(context.Background(), button(ButtonViewChallenges)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if store.queryCalls != 1 {
		t.Fatalf("query calls = %d", store.queryCalls)
	}
	if len(sender.sent) != 2 || sender.sent[0].Body != noChallengesText || sender.sent[1].Body != endText {
		t.Fatalf("sent = %s", bodies(sender.sent))
	}
}

func TestProcessLeaderboardFailureReplies(t *testing.T) {
	store := newFakeStore()
	store.sessions[store.key("919800000001", "bot-1")] = quizSession("1", content.LevelEasy)
	store.queryErr = errors.New("scan failed")
	sender := &fakeSender{}
	svc := newTestService(t, store, sender)

	if err := svc.Process(context.Background(), button(ButtonViewChallenges)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sender.sent[0].Body != leaderboardFailed {
		t.Fatalf("sent = %s", bodies(sender.sent))
	}
}

func TestProcessStoreFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	sender := &fakeSender{}
	svc := newTestService(t, store, sender)

	err := svc.Process(context.Background(), text("hi"))
	if err == nil || !strings.Contains(err.Error(), "load session") {
		t.Fatalf("Process error = %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent %d messages after store failure", len(sender.sent))
	}

	store.getErr = nil
	store.putErr = errors.New("disk full")
	if err := svc.Process(context.Background(), text("hi")); err == nil {
		t.Fatal("expected put failure")
	}
	if len(sender.sent) != 0 {
		t.Fatal("replies must not go out when the session was not saved")
	}
}

func TestProcessSendFailureIsNotReturned(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{err: errors.New("502")}
	svc := newTestService(t, store, sender)

	if err := svc.Process(context.Background(), text("hi")); err != nil {
		t.Fatalf("send failure leaked: %v", err)
	}
	if store.puts != 1 {
		t.Fatalf("session must be saved before sending, puts = %d", store.puts)
	}
}

func TestProcessUnknownChannel(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeSender{})
	in := text("hi")
	in.Channel = "fax"
	if err := svc.Process(context.Background(), in); !errors.Is(err, ErrNoSender) {
		t.Fatalf("Process = %v, want ErrNoSender", err)
	}
}

func TestProcessDropsDuplicateDelivery(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	guard := &fakeGuard{}
	svc := newTestService(t, store, sender, WithGuard(guard))

	in := text("hi")
	in.ID = "wamid.1"
	for i := 0; i < 2; i++ {
		if err := svc.Process(context.Background(), in); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if len(sender.sent) != 2 {
		t.Fatalf("duplicate delivery replied again: %d messages", len(sender.sent))
	}
	if len(guard.locked) != 1 || guard.locked[0] != "bot-1:919800000001" {
		t.Fatalf("locks = %v", guard.locked)
	}
}

func TestProcessFailedCompletionKeepsQuizOpen(t *testing.T) {
	store := newFakeStore()
	sess := quizSession("1", content.LevelEasy)
	sess.QuestionsAnswered = QuestionsPerQuiz - 1
	sess.Score = QuestionsPerQuiz - 1
	store.sessions[store.key("919800000001", "bot-1")] = sess
	store.completeErr = errors.New("connection reset")
	sender := &fakeSender{}
	svc := newTestService(t, store, sender)

	last := button("right-9")
	if err := svc.Process(context.Background(), last); err == nil {
		t.Fatal("expected completion failure")
	}
	stored, _ := store.Get(context.Background(), "919800000001", "bot-1")
	if stored.QuestionsAnswered != QuestionsPerQuiz-1 || stored.Score != QuestionsPerQuiz-1 {
		t.Fatalf("failed completion changed the session: answered=%d score=%d",
			stored.QuestionsAnswered, stored.Score)
	}
	if len(sender.sent) != 0 || len(store.appended) != 0 {
		t.Fatalf("sent=%d appended=%d after failure", len(sender.sent), len(store.appended))
	}

	store.completeErr = nil
	if err := svc.Process(context.Background(), last); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(store.appended) != 1 || store.appended[0].Score != QuestionsPerQuiz {
		t.Fatalf("appended = %+v", store.appended)
	}
	stored, _ = store.Get(context.Background(), "919800000001", "bot-1")
	if stored.QuestionsAnswered != QuestionsPerQuiz || len(stored.Challenges) != 1 {
		t.Fatalf("stored session = %+v", stored)
	}
	if got := sender.sent[len(sender.sent)-1].Body; !strings.Contains(got, "**10** out of **10**") {
		t.Fatalf("score message = %q", got)
	}
}

func TestProcessFailureReleasesDeliveryID(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	sender := &fakeSender{}
	guard := &fakeGuard{}
	svc := newTestService(t, store, sender, WithGuard(guard))

	in := text("hi")
	in.ID = "wamid.9"
	if err := svc.Process(context.Background(), in); err == nil {
		t.Fatal("expected load failure")
	}
	if len(guard.forgot) != 1 || guard.forgot[0] != "test:bot-1:wamid.9" {
		t.Fatalf("forgot = %v", guard.forgot)
	}

	store.getErr = nil
	if err := svc.Process(context.Background(), in); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if store.puts != 1 || len(sender.sent) != 2 {
		t.Fatalf("redelivery dropped: puts=%d sent=%d", store.puts, len(sender.sent))
	}
	if len(guard.forgot) != 1 {
		t.Fatalf("successful event released its id: %v", guard.forgot)
	}
}
