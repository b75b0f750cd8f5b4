package quiz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/quizbot/internal/content"
)

var testNow = time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)

func testQuestions(set int) []content.Question {
	qs := make([]content.Question, QuestionsPerQuiz)
	for i := range qs {
		qs[i] = content.Question{
			Text:        fmt.Sprintf("q%d-%d", set, i),
			Options:     []string{fmt.Sprintf("right-%d", i), "wrong-a", "wrong-b"},
			Answer:      content.Answer{fmt.Sprintf("right-%d", i)},
			Explanation: fmt.Sprintf("because %d", i),
		}
	}
	return qs
}

func testCatalog(t *testing.T) *content.Catalog {
	t.Helper()
	c := &content.Catalog{Topics: []content.Topic{
		{
			Name: "Tamil Nadu",
			Subtopics: []content.Subtopic{
				{
					Name:        "Bharatanatyam",
					Description: []string{"para one", "para two", "para three"},
					QuestionSets: []content.QuestionSet{
						{Number: 1, Level: content.LevelEasy, Questions: testQuestions(1)},
						{Number: 2, Level: content.LevelEasy, Questions: testQuestions(2)},
						{Number: 3, Level: content.LevelHard, Questions: testQuestions(3)},
					},
				},
				{Name: "Kolam", Description: []string{"kolam"}},
			},
		},
		{
			Name: "Kerala",
			Subtopics: []content.Subtopic{
				{
					Name:        "Kathakali",
					Description: []string{"kathakali"},
					QuestionSets: []content.QuestionSet{
						{Number: 1, Questions: testQuestions(1)},
						{Number: 2, Questions: testQuestions(2)},
					},
				},
			},
		},
	}}
	if err := c.Validate(); err != nil {
		t.Fatalf("test catalog invalid: %v", err)
	}
	return c
}

// fixedRand picks index pick and either leaves or reverses shuffled slices.
type fixedRand struct {
	pick    int
	reverse bool
}

func (r *fixedRand) IntN(n int) int { return r.pick % n }

func (r *fixedRand) Shuffle(n int, swap func(i, j int)) {
	if !r.reverse {
		return
	}
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

func newTestMachine(t *testing.T, opts ...Option) *Machine {
	t.Helper()
	base := []Option{WithRand(&fixedRand{}), WithClock(func() time.Time { return testNow })}
	return NewMachine(testCatalog(t), append(base, opts...)...)
}

func button(body string) Inbound {
	return Inbound{Channel: "test", From: "919800000001", BotID: "bot-1", Kind: InputButton, Body: body}
}

func text(body string) Inbound {
	return Inbound{Channel: "test", From: "919800000001", BotID: "bot-1", Kind: InputText, Body: body}
}

func namedSession() Session {
	s := NewSession("id-1", "919800000001", "bot-1", testNow)
	s.Name = "Asha"
	return s
}

func quizSession(set, level string) Session {
	s := namedSession()
	s.SelectedMainTopic = "Tamil Nadu"
	s.SelectedSubtopic = "Bharatanatyam"
	s.SelectedDifficulty = level
	s.SelectedSet = set
	return s
}

func bodies(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Body)
	}
	return strings.Join(parts, "\n---\n")
}

type fakeStore struct {
	mu          sync.Mutex
	sessions    map[string]Session
	appended    []Challenge
	puts        int
	getErr      error
	putErr      error
	completeErr error
	queryErr    error
	queryCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]Session)}
}

func (f *fakeStore) key(phone, botID string) string { return botID + "/" + phone }

func (f *fakeStore) Get(_ context.Context, phone, botID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[f.key(phone, botID)]
	if !ok {
		return nil, ErrNotFound
	}
	s = s.Clone()
	return &s, nil
}

func (f *fakeStore) Put(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	prev := f.sessions[f.key(s.Phone, s.BotID)]
	s.Challenges = prev.Challenges
	f.sessions[f.key(s.Phone, s.BotID)] = s
	f.puts++
	return nil
}

func (f *fakeStore) AppendChallenge(_ context.Context, phone, botID string, c Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[f.key(phone, botID)]
	s.Challenges = append(s.Challenges, c)
	f.sessions[f.key(phone, botID)] = s
	f.appended = append(f.appended, c)
	return nil
}

func (f *fakeStore) Complete(_ context.Context, s Session, c Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	prev := f.sessions[f.key(s.Phone, s.BotID)]
	s.Challenges = append(append([]Challenge(nil), prev.Challenges...), c)
	f.sessions[f.key(s.Phone, s.BotID)] = s
	f.puts++
	f.appended = append(f.appended, c)
	return nil
}

func (f *fakeStore) QueryByBot(_ context.Context, botID string) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []Session
	for _, s := range f.sessions {
		if s.BotID == botID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, _ string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeTracker struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeTracker) Track(_ context.Context, event string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeGuard struct {
	seen   map[string]bool
	locked []string
	forgot []string
}

func (g *fakeGuard) FirstDelivery(_ context.Context, key string) (bool, error) {
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *fakeGuard) Forget(_ context.Context, key string) error {
	delete(g.seen, key)
	g.forgot = append(g.forgot, key)
	return nil
}

func (g *fakeGuard) Lock(_ context.Context, key string) (func(), error) {
	g.locked = append(g.locked, key)
	return func() {}, nil
}
