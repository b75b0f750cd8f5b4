// Package telegram runs a telebot bot inside the process lifecycle:
// poller selection, the shared middleware chain and graceful stop.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/netutil"

	tele "gopkg.in/telebot.v4"
)

const apiURL = "https://api.telegram.org"

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Config      coreconfig.TelegramConfig
	Middlewares []Middleware
	Routes      []Route
	// Client overrides the retrying HTTP client used for Bot API calls.
	Client *http.Client

	DisableWebhookCleanup bool

	// OnStart runs after the bot is built and before polling starts. It is
	// where callers capture the bot for outbound sends.
	OnStart func(ctx context.Context, bot *tele.Bot) error
	OnStop  func(ctx context.Context, bot *tele.Bot) error
}

// Run composes and runs a Telegram bot until ctx is done.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if strings.TrimSpace(cfg.Token) == "" {
		return fmt.Errorf("telegram: empty token")
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.RunMode,
		LongPollTimeoutSeconds: cfg.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	client := opts.Client
	if client == nil {
		wait := defaultLongPollTimeout
		if cfg.LongPollTimeoutSeconds > 0 {
			wait = time.Duration(cfg.LongPollTimeoutSeconds) * time.Second
		}
		client = netutil.BuildHTTPClient(netutil.ClientOptions{
			Timeout:               wait + 20*time.Second,
			ResponseHeaderTimeout: wait + 10*time.Second,
		})
	}

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: poller,
		Client: client,
		OnError: func(err error, c tele.Context) {
			logger.Error(ctx, logger.CompTelegram, "handler.fail",
				slog.String("err", netutil.SanitizeError(err)),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %s", netutil.SanitizeError(err))
	}
	buildTook := time.Since(buildStart)

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	case *tele.LongPoller:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", "polling"),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
		if !opts.DisableWebhookCleanup {
			if err := deleteWebhook(ctx, client, cfg.Token, false); err != nil {
				logger.Warn(ctx, logger.CompTelegram, "delete_webhook.fail",
					slog.String("err", netutil.SanitizeError(err)),
				)
			} else {
				logger.Info(ctx, logger.CompTelegram, "delete_webhook.ok")
			}
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, bot); err != nil {
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), bot)
	}
	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func deleteWebhook(ctx context.Context, client *http.Client, token string, dropPending bool) error {
	url := fmt.Sprintf("%s/bot%s/deleteWebhook", apiURL, token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &netutil.StatusError{Code: resp.StatusCode}
	}
	return nil
}
