// Package quiz implements the conversation state machine of the quiz bot
// and the service that drives it for one inbound event at a time.
package quiz

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/m3rciful/quizbot/internal/content"
)

// Rand is the randomness the machine needs. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Machine computes transitions. It holds no per-user state.
type Machine struct {
	catalog   *content.Catalog
	rnd       Rand
	now       func() time.Time
	scorecard bool
}

// Option customises a Machine.
type Option func(*Machine)

// WithRand injects the random source used for set picks and option shuffles.
func WithRand(r Rand) Option {
	return func(m *Machine) {
		if r != nil {
			m.rnd = r
		}
	}
}

// WithClock overrides time.Now for challenge timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithScorecard enables the scorecard message before the final score.
func WithScorecard(enabled bool) Option {
	return func(m *Machine) { m.scorecard = enabled }
}

// NewMachine builds a machine over catalog.
func NewMachine(catalog *content.Catalog, opts ...Option) *Machine {
	m := &Machine{
		catalog: catalog,
		rnd:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Catalog returns the catalog the machine reads.
func (m *Machine) Catalog() *content.Catalog { return m.catalog }

// Result is the outcome of one transition.
type Result struct {
	Event    Event
	Session  Session
	Messages []Message
	// Challenge is set when this event completed a quiz.
	Challenge *Challenge
	// Leaderboard is set when the reply depends on other users' sessions.
	Leaderboard *LeaderboardQuery
	// Persist reports whether Session differs from the input.
	Persist bool
	// Miss describes a catalog lookup that found nothing.
	Miss string
}

// Noop reports whether the event produced no effect at all.
func (r Result) Noop() bool {
	return !r.Persist && len(r.Messages) == 0 && r.Challenge == nil && r.Leaderboard == nil
}

// Transition classifies in and applies it to s.
func (m *Machine) Transition(s Session, in Inbound) Result {
	return m.Apply(s, Classify(s, in, m.catalog))
}

// Apply computes the next session and replies for ev. It never mutates s.
func (m *Machine) Apply(s Session, ev Event) Result {
	next := s.Clone()
	res := Result{Event: ev, Session: next}

	switch ev.Kind {
	case KindGreeting:
		next.resetSelection()
		res.Persist = true
		res.Messages = append(res.Messages, TextMessage(welcomeText))
		if next.Named() {
			res.Messages = append(res.Messages, m.topicList())
		} else {
			res.Messages = append(res.Messages, TextMessage(namePromptText))
		}

	case KindName:
		next.Name = ev.Value
		res.Persist = true
		res.Messages = append(res.Messages, m.topicList())

	case KindMenu:
		next.resetSelection()
		res.Persist = true
		res.Messages = append(res.Messages, TextMessage(welcomeText), m.topicList())

	case KindRetake:
		next.resetProgress()
		res.Persist = next.QuestionsAnswered != s.QuestionsAnswered || next.Score != s.Score
		set, ok := m.catalog.QuestionSet(next.SelectedMainTopic, next.SelectedSubtopic, next.SelectedSet)
		if !ok || !next.InQuiz() {
			res.Miss = "question set"
			break
		}
		if msg, ok := m.question(set, 0); ok {
			res.Messages = append(res.Messages, msg)
		} else {
			res.Miss = "question"
		}

	case KindViewChallenges:
		res.Leaderboard = &LeaderboardQuery{
			BotID:    next.BotID,
			Topic:    next.SelectedMainTopic,
			Subtopic: next.SelectedSubtopic,
			Level:    next.SelectedDifficulty,
			Set:      next.SelectedSet,
		}

	case KindMoreExplanation:
		sub, ok := m.selectedSubtopic(next)
		if !ok {
			res.Miss = "subtopic"
			break
		}
		res.Messages = append(res.Messages, ButtonMessage(
			moreExplanationText(sub.Name, sub.Description),
			ButtonTestYourself, ButtonMainMenu,
		))

	case KindTestYourself:
		res.Messages = append(res.Messages, ButtonMessage(difficultyText, content.Levels...))

	case KindDifficulty:
		m.startQuiz(&next, ev.Value, &res)

	case KindAnswer:
		m.answer(&next, ev.Value, &res)

	case KindTopic:
		topic, ok := m.catalog.TopicByName(ev.Value)
		if !ok {
			res.Miss = "topic"
			break
		}
		next.SelectedMainTopic = topic.Name
		next.SelectedSubtopic = ""
		res.Persist = true
		res.Messages = append(res.Messages, ButtonMessage(selectSubtopicText(topic.Name), topic.SubtopicNames()...))

	case KindSubtopic:
		sub, topic, ok := m.lookupSubtopic(next.SelectedMainTopic, ev.Value)
		if !ok {
			res.Miss = "subtopic"
			break
		}
		next.SelectedMainTopic = topic.Name
		next.SelectedSubtopic = sub.Name
		res.Persist = true
		if len(sub.Description) == 0 {
			res.Miss = "description"
			break
		}
		res.Messages = append(res.Messages, ButtonMessage(
			explanationText(sub.Name, sub.Description[0]),
			ButtonMoreExplanation, ButtonStartQuiz, ButtonMainMenu,
		))
	}

	res.Session = next
	return res
}

func (m *Machine) startQuiz(next *Session, level string, res *Result) {
	candidates := m.catalog.QuestionSetsByDifficulty(next.SelectedMainTopic, next.SelectedSubtopic, level)
	if len(candidates) == 0 {
		res.Miss = "question set"
		return
	}
	set := candidates[m.rnd.IntN(len(candidates))]
	next.SelectedDifficulty = level
	next.SelectedSet = set.ID()
	next.resetProgress()
	res.Persist = true
	if msg, ok := m.question(&set, 0); ok {
		res.Messages = append(res.Messages, msg)
	} else {
		res.Miss = "question"
	}
}

func (m *Machine) answer(next *Session, submitted string, res *Result) {
	if next.QuestionsAnswered >= QuestionsPerQuiz {
		return
	}
	set, ok := m.catalog.QuestionSet(next.SelectedMainTopic, next.SelectedSubtopic, next.SelectedSet)
	if !ok {
		res.Miss = "question set"
		return
	}
	q, ok := content.QuestionAt(set, next.QuestionsAnswered)
	if !ok {
		res.Miss = "question"
		return
	}

	if AnswerMatches(submitted, q.Answer) {
		next.Score++
		res.Messages = append(res.Messages, TextMessage(rightAnswerText(q.Explanation)))
	} else {
		res.Messages = append(res.Messages, TextMessage(wrongAnswerText(q.Answer.Value(), q.Explanation)))
	}
	next.QuestionsAnswered++
	res.Persist = true

	if next.QuestionsAnswered >= QuestionsPerQuiz {
		now := m.now()
		badge := BadgeFor(next.Score)
		res.Challenge = &Challenge{
			Topic:       next.SelectedMainTopic,
			Subtopic:    next.SelectedSubtopic,
			Level:       next.SelectedDifficulty,
			Set:         next.SelectedSet,
			Score:       next.Score,
			Badge:       badge,
			CompletedAt: now,
		}
		next.Challenges = append(next.Challenges, *res.Challenge)
		if m.scorecard {
			res.Messages = append(res.Messages, Message{
				Kind:      MessageScorecard,
				Scorecard: &Scorecard{Score: next.Score, Total: QuestionsPerQuiz, Badge: badge, Date: now},
			})
		}
		res.Messages = append(res.Messages, ButtonMessage(
			scoreText(next.Score, next.QuestionsAnswered, badge),
			ButtonMainMenu, ButtonRetakeQuiz, ButtonViewChallenges,
		))
		return
	}

	if msg, ok := m.question(set, next.QuestionsAnswered); ok {
		res.Messages = append(res.Messages, msg)
	} else {
		res.Miss = "question"
	}
}

// AnswerMatches compares a submitted option with the stored answer.
// Either side may arrive wrapped in a single-element list.
func AnswerMatches(submitted string, answer content.Answer) bool {
	got := strings.TrimSpace(submitted)
	if got == "" {
		return false
	}
	for _, want := range answer {
		if strings.TrimSpace(want) == got {
			return true
		}
	}
	return false
}

func (m *Machine) question(set *content.QuestionSet, index int) (Message, bool) {
	q, ok := content.QuestionAt(set, index)
	if !ok {
		return Message{}, false
	}
	options := append([]string(nil), q.Options...)
	m.rnd.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return ButtonMessage(q.Text, options...), true
}

func (m *Machine) topicList() Message {
	return ButtonMessage(chooseTopicText, m.catalog.TopicNames()...)
}

func (m *Machine) selectedSubtopic(s Session) (*content.Subtopic, bool) {
	sub, _, ok := m.lookupSubtopic(s.SelectedMainTopic, s.SelectedSubtopic)
	return sub, ok
}

// lookupSubtopic prefers the selected topic and falls back to a catalog-wide search.
func (m *Machine) lookupSubtopic(topic, name string) (*content.Subtopic, *content.Topic, bool) {
	if name == "" {
		return nil, nil, false
	}
	if t, ok := m.catalog.TopicByName(topic); ok {
		if sub, ok := t.Subtopic(name); ok {
			return sub, t, true
		}
	}
	return m.catalog.SubtopicByName(name)
}
