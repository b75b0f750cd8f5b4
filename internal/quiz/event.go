package quiz

import (
	"strings"

	"github.com/m3rciful/quizbot/internal/content"
)

// InputKind distinguishes free text from button replies.
type InputKind int

const (
	InputText InputKind = iota + 1
	InputButton
)

func (k InputKind) String() string {
	switch k {
	case InputText:
		return "text"
	case InputButton:
		return "button"
	default:
		return "unknown"
	}
}

// Inbound is one validated chat event as delivered by a channel.
type Inbound struct {
	// ID identifies the delivery for duplicate filtering. Events without
	// an id are never treated as duplicates.
	ID      string
	Channel string
	From    string
	BotID   string
	Kind    InputKind
	Body    string
}

// Kind is the classified meaning of an inbound event.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindGreeting
	KindName
	KindMenu
	KindRetake
	KindViewChallenges
	KindMoreExplanation
	KindTestYourself
	KindDifficulty
	KindAnswer
	KindTopic
	KindSubtopic
)

var kindNames = map[Kind]string{
	KindUnrecognized:    "unrecognized",
	KindGreeting:        "greeting",
	KindName:            "name",
	KindMenu:            "menu",
	KindRetake:          "retake",
	KindViewChallenges:  "view_challenges",
	KindMoreExplanation: "more_explanation",
	KindTestYourself:    "test_yourself",
	KindDifficulty:      "difficulty",
	KindAnswer:          "answer",
	KindTopic:           "topic",
	KindSubtopic:        "subtopic",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unrecognized"
}

// Event is an inbound event resolved against the session and catalog.
// Value holds the payload relevant to Kind: the name, difficulty, answer,
// topic or subtopic.
type Event struct {
	Kind  Kind
	Value string
}

// Button labels understood by the machine.
const (
	ButtonMainMenu        = "Main Menu"
	ButtonRetakeQuiz      = "Retake Quiz"
	ButtonViewChallenges  = "View Challenges"
	ButtonMoreExplanation = "More Explanation"
	ButtonStartQuiz       = "Start Quiz"
	ButtonTestYourself    = "Test Yourself"
)

var greetings = map[string]struct{}{
	"hi":    {},
	"hello": {},
	"hola":  {},
	"hey":   {},
}

// IsGreeting matches the greeting words case-insensitively.
func IsGreeting(text string) bool {
	_, ok := greetings[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Classify resolves in against s in fixed priority order. Text events can
// only be greetings or names; everything else comes from buttons.
func Classify(s Session, in Inbound, cat *content.Catalog) Event {
	body := strings.TrimSpace(in.Body)
	if in.Kind == InputText {
		switch {
		case IsGreeting(body):
			return Event{Kind: KindGreeting}
		case !s.Named() && body != "":
			return Event{Kind: KindName, Value: body}
		default:
			return Event{Kind: KindUnrecognized, Value: body}
		}
	}
	if in.Kind != InputButton {
		return Event{Kind: KindUnrecognized, Value: body}
	}

	switch body {
	case ButtonMainMenu:
		return Event{Kind: KindMenu}
	case ButtonRetakeQuiz:
		return Event{Kind: KindRetake}
	case ButtonViewChallenges:
		return Event{Kind: KindViewChallenges}
	case ButtonMoreExplanation:
		return Event{Kind: KindMoreExplanation}
	case ButtonTestYourself, ButtonStartQuiz:
		return Event{Kind: KindTestYourself}
	}
	if content.IsLevel(body) {
		return Event{Kind: KindDifficulty, Value: body}
	}
	if s.InQuiz() {
		return Event{Kind: KindAnswer, Value: body}
	}
	if _, ok := cat.TopicByName(body); ok {
		return Event{Kind: KindTopic, Value: body}
	}
	if _, _, ok := cat.SubtopicByName(body); ok {
		return Event{Kind: KindSubtopic, Value: body}
	}
	return Event{Kind: KindUnrecognized, Value: body}
}
