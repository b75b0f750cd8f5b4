package quiz

import (
	"time"

	"github.com/m3rciful/quizbot/internal/content"
)

// QuestionsPerQuiz is the number of answers that completes one attempt.
// Catalog validation guarantees every set has at least this many.
const QuestionsPerQuiz = content.QuestionsPerSet

// DefaultLanguage is stored on every new session.
const DefaultLanguage = "english"

// Session is the persisted conversation state of one user of one bot.
// Empty strings stand for unset selections.
type Session struct {
	ID       string
	Phone    string
	BotID    string
	Language string
	Name     string

	SelectedMainTopic  string
	SelectedSubtopic   string
	SelectedDifficulty string
	SelectedSet        string

	QuestionsAnswered int
	Score             int

	Challenges []Challenge

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Challenge summarises one completed quiz attempt.
type Challenge struct {
	Topic       string
	Subtopic    string
	Level       string
	Set         string
	Score       int
	Badge       Badge
	CompletedAt time.Time
}

// NewSession returns a blank session for phone and botID.
func NewSession(id, phone, botID string, now time.Time) Session {
	return Session{
		ID:        id,
		Phone:     phone,
		BotID:     botID,
		Language:  DefaultLanguage,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InQuiz reports whether button presses are interpreted as answers.
func (s Session) InQuiz() bool {
	return s.SelectedDifficulty != "" && s.SelectedSet != ""
}

// Named reports whether the user already told us their name.
func (s Session) Named() bool {
	return s.Name != ""
}

// Clone returns a deep copy so transitions never alias the caller's slice.
func (s Session) Clone() Session {
	if s.Challenges != nil {
		s.Challenges = append([]Challenge(nil), s.Challenges...)
	}
	return s
}

func (s *Session) resetProgress() {
	s.QuestionsAnswered = 0
	s.Score = 0
}

func (s *Session) resetSelection() {
	s.SelectedMainTopic = ""
	s.SelectedSubtopic = ""
	s.SelectedDifficulty = ""
	s.SelectedSet = ""
	s.resetProgress()
}

// Badge is the tier awarded for a quiz score.
type Badge string

const (
	BadgeGold   Badge = "Gold"
	BadgeSilver Badge = "Silver"
	BadgeBronze Badge = "Bronze"
	BadgeNone   Badge = "None"
)

// BadgeFor maps a score to its badge: 10 Gold, 7..9 Silver, 5..6 Bronze.
func BadgeFor(score int) Badge {
	switch {
	case score >= QuestionsPerQuiz:
		return BadgeGold
	case score >= 7:
		return BadgeSilver
	case score >= 5:
		return BadgeBronze
	default:
		return BadgeNone
	}
}

// Label renders the badge for chat messages.
func (b Badge) Label() string {
	switch b {
	case BadgeGold:
		return "Gold 🥇"
	case BadgeSilver:
		return "Silver 🥈"
	case BadgeBronze:
		return "Bronze 🥉"
	default:
		return "No"
	}
}
