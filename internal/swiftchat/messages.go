package swiftchat

import (
	"fmt"
	"strconv"

	"github.com/m3rciful/quizbot/internal/quiz"
)

type textMessage struct {
	To   string `json:"to"`
	Type string `json:"type"`
	Text Body   `json:"text"`
}

type buttonMessage struct {
	To     string      `json:"to"`
	Type   string      `json:"type"`
	Button buttonBlock `json:"button"`
}

type buttonBlock struct {
	Body                buttonPrompt `json:"body"`
	Buttons             []button     `json:"buttons"`
	AllowCustomResponse bool         `json:"allow_custom_response"`
}

type buttonPrompt struct {
	Type string `json:"type"`
	Text Body   `json:"text"`
}

type button struct {
	Type  string `json:"type"`
	Body  string `json:"body"`
	Reply string `json:"reply"`
}

type scorecardMessage struct {
	To        string        `json:"to"`
	Type      string        `json:"type"`
	Scorecard scorecardCard `json:"scorecard"`
}

type scorecardCard struct {
	Theme        string `json:"theme"`
	Background   string `json:"background"`
	Performance  string `json:"performance"`
	ShareMessage string `json:"share_message,omitempty"`
	Text1        string `json:"text1"`
	Text2        string `json:"text2"`
	Text3        string `json:"text3"`
	Text4        string `json:"text4"`
	Score        string `json:"score"`
	Animation    string `json:"animation"`
}

// encode maps a descriptor to the SwiftChat wire payload.
func encode(to string, msg quiz.Message, shareMessage string) (any, error) {
	switch msg.Kind {
	case quiz.MessageText:
		return textMessage{To: to, Type: "text", Text: Body{Body: msg.Body}}, nil
	case quiz.MessageButtons:
		buttons := make([]button, 0, len(msg.Buttons))
		for _, label := range msg.Buttons {
			buttons = append(buttons, button{Type: "solid", Body: label, Reply: label})
		}
		return buttonMessage{
			To:   to,
			Type: "button",
			Button: buttonBlock{
				Body:    buttonPrompt{Type: "text", Text: Body{Body: msg.Body}},
				Buttons: buttons,
			},
		}, nil
	case quiz.MessageScorecard:
		if msg.Scorecard == nil {
			return nil, fmt.Errorf("swiftchat: scorecard message without card")
		}
		card := msg.Scorecard
		return scorecardMessage{
			To:   to,
			Type: "scorecard",
			Scorecard: scorecardCard{
				Theme:        "theme4",
				Background:   "blue",
				Performance:  performance(card.Badge),
				ShareMessage: shareMessage,
				Text1:        card.DateLabel(),
				Text2:        "Good job! Keep pushing!",
				Text3:        strconv.Itoa(card.Percent()) + "%",
				Text4:        card.Badge.Label(),
				Score:        fmt.Sprintf("%d/%d", card.Score, card.Total),
				Animation:    "confetti",
			},
		}, nil
	default:
		return nil, fmt.Errorf("swiftchat: unsupported message kind %q", msg.Kind)
	}
}

func performance(b quiz.Badge) string {
	switch b {
	case quiz.BadgeGold, quiz.BadgeSilver:
		return "high"
	case quiz.BadgeBronze:
		return "medium"
	default:
		return "low"
	}
}
