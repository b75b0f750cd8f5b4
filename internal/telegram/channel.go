// Package telegram adapts the quiz service to Telegram: updates become
// quiz events and quiz messages become Bot API sends.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	coretelegram "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"
	"github.com/m3rciful/quizbot/core/telegram/format"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
	"github.com/m3rciful/quizbot/core/telegram/keyboard"
	"github.com/m3rciful/quizbot/internal/quiz"

	tele "gopkg.in/telebot.v4"
)

// Channel is the channel name used in logs, metrics and sender routing.
const Channel = tghelpers.Channel

// buttonUnique is the callback key of every quiz reply button. The payload
// is the button index; the label is read back from the message keyboard
// since labels may exceed the 64 byte callback data limit.
const buttonUnique = "qb"

const buttonsPerRow = 2

// ErrNotReady is returned by Send before the bot has started.
var ErrNotReady = errors.New("telegram bot not started")

// ErrBadRecipient is returned for addresses that are not numeric chat ids.
var ErrBadRecipient = errors.New("invalid telegram recipient")

// api is the part of *tele.Bot used for outbound messages.
type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Processor handles one inbound event.
type Processor interface {
	Process(ctx context.Context, in quiz.Inbound) error
}

// Sender implements quiz.Sender over the Bot API. The bot is attached once
// the runtime has built it.
type Sender struct {
	bot atomic.Pointer[apiHolder]
}

type apiHolder struct{ api api }

// Attach sets the bot used for sending.
func (s *Sender) Attach(b api) {
	s.bot.Store(&apiHolder{api: b})
}

// Send renders msg for Telegram and delivers it to the chat id in to.
func (s *Sender) Send(_ context.Context, to string, msg quiz.Message) error {
	h := s.bot.Load()
	if h == nil {
		return ErrNotReady
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("%w %q", ErrBadRecipient, to)
	}
	text, opts := Render(msg)
	if _, err := h.api.Send(tele.ChatID(chatID), text, opts); err != nil {
		return fmt.Errorf("telegram send %s: %w", msg.Kind, err)
	}
	return nil
}

// Render converts a descriptor into MarkdownV2 text and send options.
func Render(msg quiz.Message) (string, *tele.SendOptions) {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	switch msg.Kind {
	case quiz.MessageButtons:
		btns := make([]keyboard.InlineBtn, len(msg.Buttons))
		for i, label := range msg.Buttons {
			btns[i] = keyboard.InlineBtn{Text: label, Unique: buttonUnique, Data: strconv.Itoa(i)}
		}
		opts.ReplyMarkup = keyboard.InlineButtonsNPerRow(btns, buttonsPerRow)
		return format.BoldToMarkdownV2(msg.Body), opts
	case quiz.MessageScorecard:
		return scorecardText(msg.Scorecard), opts
	default:
		return format.BoldToMarkdownV2(msg.Body), opts
	}
}

func scorecardText(sc *quiz.Scorecard) string {
	if sc == nil {
		return ""
	}
	lines := []string{
		"🏆 **" + sc.DateLabel() + "**",
		"Good job! Keep pushing!",
		fmt.Sprintf("Score: **%d/%d** (%d%%)", sc.Score, sc.Total, sc.Percent()),
		"Badge: " + sc.Badge.Label(),
	}
	return format.BoldToMarkdownV2(strings.Join(lines, "\n"))
}

// InboundFromUpdate maps an update to a quiz event. ok is false for
// updates the quiz does not handle.
func InboundFromUpdate(upd tele.Update, botID string) (quiz.Inbound, bool) {
	in := quiz.Inbound{
		ID:      strconv.Itoa(upd.ID),
		Channel: Channel,
		BotID:   botID,
	}
	switch {
	case upd.Callback != nil:
		cb := upd.Callback
		if cb.Sender == nil || cb.Message == nil {
			return quiz.Inbound{}, false
		}
		key, payload := callbacks.ParseCallbackData(cb)
		if key != buttonUnique {
			return quiz.Inbound{}, false
		}
		idx, err := strconv.Atoi(payload)
		labels := keyboard.Labels(cb.Message.ReplyMarkup)
		if err != nil || idx < 0 || idx >= len(labels) {
			return quiz.Inbound{}, false
		}
		in.From = strconv.FormatInt(cb.Sender.ID, 10)
		in.Kind = quiz.InputButton
		in.Body = labels[idx]
	case upd.Message != nil:
		m := upd.Message
		if m.Sender == nil || m.Text == "" || (m.Chat != nil && m.Chat.Type != tele.ChatPrivate) {
			return quiz.Inbound{}, false
		}
		in.From = strconv.FormatInt(m.Sender.ID, 10)
		in.Kind = quiz.InputText
		in.Body = m.Text
	default:
		return quiz.Inbound{}, false
	}
	return in, true
}

// Routes returns the bot handlers feeding proc. Each event is bounded by
// timeout.
func Routes(proc Processor, botID string, timeout time.Duration) []coretelegram.Route {
	handle := func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(tghelpers.WithHandler(c, "quiz"), timeout)
		defer cancel()
		if c.Callback() != nil {
			// Stop the client side spinner; failures are cosmetic.
			_ = c.Respond()
		}
		in, ok := InboundFromUpdate(c.Update(), botID)
		if !ok {
			logger.Debug(ctx, logger.CompTelegram, "update.skip")
			return nil
		}
		if err := proc.Process(ctx, in); err != nil {
			logger.Error(ctx, logger.CompTelegram, "process.fail", slog.Any("err", err))
		}
		return nil
	}
	return []coretelegram.Route{
		{Endpoint: tele.OnText, Handler: handle},
		{Endpoint: tele.OnCallback, Handler: handle},
	}
}
