package quiz

import (
	"fmt"
	"strings"
	"time"
)

// MessageKind selects how a channel renders a Message.
type MessageKind string

const (
	MessageText      MessageKind = "text"
	MessageButtons   MessageKind = "button"
	MessageScorecard MessageKind = "scorecard"
)

// Message is a channel-neutral outbound descriptor.
type Message struct {
	Kind      MessageKind
	Body      string
	Buttons   []string
	Scorecard *Scorecard
}

// Scorecard is the visual summary sent when a quiz completes.
type Scorecard struct {
	Score int
	Total int
	Badge Badge
	Date  time.Time
}

// Percent returns the score as a whole percentage.
func (s Scorecard) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return s.Score * 100 / s.Total
}

// DateLabel renders the card title, e.g. Quiz-5-3-25.
func (s Scorecard) DateLabel() string {
	return fmt.Sprintf("Quiz-%d-%d-%d", s.Date.Day(), int(s.Date.Month()), s.Date.Year()%100)
}

// TextMessage builds a plain text descriptor.
func TextMessage(body string) Message {
	return Message{Kind: MessageText, Body: body}
}

// ButtonMessage builds a prompt with reply buttons.
func ButtonMessage(body string, buttons ...string) Message {
	return Message{Kind: MessageButtons, Body: body, Buttons: append([]string(nil), buttons...)}
}

// User-facing copy.
const (
	welcomeText       = "Welcome to 🕰️the Facts About Your State Bot! 🌏 Discover fascinating facts about the diverse states of India. Ready to explore? Let’s start our journey!🕰️"
	namePromptText    = "Can you please tell me your name?"
	chooseTopicText   = "🌍 Ready for an adventure? Pick a topic below and let the exploration begin! 🎉!!"
	difficultyText    = "🎯 Choose your quiz level to get started!🚀"
	endText           = "Whenever you're ready to continue, just type 'Hi' to start the bot again. Looking forward to helping you out! 😊"
	noChallengesText  = "No challenges have been completed yet."
	leaderboardFailed = "An error occurred while fetching challenges. Please try again later."
)

func selectSubtopicText(topic string) string {
	return fmt.Sprintf("📜Ready to dive into the unique traditions and fascinating stories of %s:🌍✨ Let’s explore the rich heritage and culture that make it stand out!", topic)
}

func explanationText(subtopic, paragraph string) string {
	return fmt.Sprintf("📖 **Explanation of %s:**\n%s", subtopic, paragraph)
}

func moreExplanationText(subtopic string, paragraphs []string) string {
	return fmt.Sprintf("📝 More Explanation of **%s:**\n%s", subtopic, strings.Join(paragraphs, "\n\n"))
}

func rightAnswerText(explanation string) string {
	return fmt.Sprintf("🌟 Fantastic! You got it 👍right!\nCheck this out: **%s**", explanation)
}

func wrongAnswerText(correct, explanation string) string {
	return fmt.Sprintf("👎Not quite right, but you’re learning! 💪\nThe correct answer is: **%s**\nHere’s the explanation: **%s**", correct, explanation)
}

func scoreText(score, total int, badge Badge) string {
	return fmt.Sprintf("🌟 Wow! You did an awesome job. **%d** out of **%d**.\n\n💪 Congratulations! You earned %s badge!", score, total, badge.Label())
}

func leaderboardText(entries []LeaderboardEntry) string {
	var b strings.Builder
	b.WriteString("Top 3 Users:\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.DisplayName())
		fmt.Fprintf(&b, "    Score: %d\n", e.Total)
		fmt.Fprintf(&b, "    Badge: %s\n\n", e.Badge.Label())
	}
	return strings.TrimRight(b.String(), "\n")
}
