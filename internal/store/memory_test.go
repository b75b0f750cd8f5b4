package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m3rciful/quizbot/internal/quiz"
)

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), "9198", "bot"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(context.Background(), "", "bot"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("empty phone must be rejected, got %v", err)
	}
}

func TestMemoryPutKeepsChallenges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := quiz.NewSession("id", "9198", "bot", now)
	if err := m.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c := quiz.Challenge{Topic: "T", Subtopic: "S", Level: "Easy", Set: "1", Score: 7, Badge: quiz.BadgeSilver}
	if err := m.AppendChallenge(ctx, "9198", "bot", c); err != nil {
		t.Fatalf("AppendChallenge: %v", err)
	}

	// A Put carrying a stale challenge slice must not rewrite history.
	s.Score = 0
	s.Challenges = []quiz.Challenge{c, c, c}
	if err := m.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "9198", "bot")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Challenges) != 1 || got.Challenges[0] != c {
		t.Fatalf("challenges = %+v", got.Challenges)
	}

	got.Challenges[0].Score = 0
	again, _ := m.Get(ctx, "9198", "bot")
	if again.Challenges[0].Score != 7 {
		t.Fatal("Get must return a copy")
	}
}

func TestMemoryAppendChallengeUnknownUser(t *testing.T) {
	err := NewMemory().AppendChallenge(context.Background(), "9198", "bot", quiz.Challenge{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("AppendChallenge = %v, want ErrNotFound", err)
	}
}

func TestMemoryCompleteWritesSessionAndChallenge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := quiz.NewSession("id", "9198", "bot", now)
	s.QuestionsAnswered = 9
	if err := m.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s.QuestionsAnswered = 10
	s.Score = 8
	c := quiz.Challenge{Topic: "T", Subtopic: "S", Level: "Easy", Set: "1", Score: 8, Badge: quiz.BadgeSilver}
	if err := m.Complete(ctx, s, c); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := m.Get(ctx, "9198", "bot")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.QuestionsAnswered != 10 || got.Score != 8 || len(got.Challenges) != 1 || got.Challenges[0] != c {
		t.Fatalf("stored = %+v", got)
	}
}

func TestMemoryQueryByBot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []struct{ phone, bot string }{{"3", "a"}, {"1", "a"}, {"2", "b"}} {
		if err := m.Put(ctx, quiz.NewSession(k.phone, k.phone, k.bot, time.Now())); err != nil {
			t.Fatal(err)
		}
	}
	got, err := m.QueryByBot(ctx, "a")
	if err != nil {
		t.Fatalf("QueryByBot: %v", err)
	}
	if len(got) != 2 || got[0].Phone != "1" || got[1].Phone != "3" {
		t.Fatalf("QueryByBot = %+v", got)
	}
}

func TestGroupSessions(t *testing.T) {
	users := []userRow{{ID: "u1", Phone: "1", BotID: "b"}, {ID: "u2", Phone: "2", BotID: "b"}}
	rows := []challengeRow{
		{UserID: "u2", Topic: "T", Score: 4, Badge: "None"},
		{UserID: "u2", Topic: "T", Score: 9, Badge: "Silver"},
	}
	got := groupSessions(users, rows)
	if len(got) != 2 || len(got[0].Challenges) != 0 || len(got[1].Challenges) != 2 {
		t.Fatalf("groupSessions = %+v", got)
	}
	if got[1].Challenges[1].Badge != quiz.BadgeSilver {
		t.Fatalf("badge = %q", got[1].Challenges[1].Badge)
	}
}
