// Package swiftchat implements the SwiftChat channel: validation of inbound
// webhook payloads and delivery of outbound messages.
package swiftchat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/quizbot/internal/quiz"
)

// Channel is the channel name used in logs, metrics and sender routing.
const Channel = "swiftchat"

// ErrInvalidPayload wraps every inbound validation failure.
var ErrInvalidPayload = errors.New("invalid swiftchat payload")

// Body is the {"body": "..."} envelope used by text and button replies.
type Body struct {
	Body string `json:"body"`
}

// Payload is the inbound webhook body. Exactly one of Text and
// ButtonResponse must be present.
type Payload struct {
	MessageID      string `json:"message_id,omitempty"`
	From           string `json:"from"`
	Text           *Body  `json:"text,omitempty"`
	ButtonResponse *Body  `json:"button_response,omitempty"`
}

// Validate checks the payload shape.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.From) == "" {
		return fmt.Errorf("%w: missing from", ErrInvalidPayload)
	}
	switch {
	case p.Text != nil && p.ButtonResponse != nil:
		return fmt.Errorf("%w: both text and button_response present", ErrInvalidPayload)
	case p.Text == nil && p.ButtonResponse == nil:
		return fmt.Errorf("%w: neither text nor button_response present", ErrInvalidPayload)
	}
	return nil
}

// Inbound converts a valid payload into a quiz event for botID.
func (p Payload) Inbound(botID string) (quiz.Inbound, error) {
	if err := p.Validate(); err != nil {
		return quiz.Inbound{}, err
	}
	in := quiz.Inbound{
		ID:      strings.TrimSpace(p.MessageID),
		Channel: Channel,
		From:    strings.TrimSpace(p.From),
		BotID:   botID,
	}
	if p.Text != nil {
		in.Kind = quiz.InputText
		in.Body = p.Text.Body
	} else {
		in.Kind = quiz.InputButton
		in.Body = p.ButtonResponse.Body
	}
	return in, nil
}
