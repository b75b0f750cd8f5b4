// Package app wires configuration into a running quiz bot: store, guard,
// analytics, metrics, the SwiftChat webhook and the optional Telegram bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/quizbot/core/bootstrap"
	"github.com/m3rciful/quizbot/core/cmd"
	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/sender"
	coretelegram "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/internal/analytics"
	"github.com/m3rciful/quizbot/internal/content"
	"github.com/m3rciful/quizbot/internal/guard"
	"github.com/m3rciful/quizbot/internal/metrics"
	"github.com/m3rciful/quizbot/internal/quiz"
	"github.com/m3rciful/quizbot/internal/server"
	"github.com/m3rciful/quizbot/internal/store"
	"github.com/m3rciful/quizbot/internal/swiftchat"
	"github.com/m3rciful/quizbot/internal/telegram"

	tele "gopkg.in/telebot.v4"
)

const connectTimeout = 15 * time.Second

// App owns every long lived component.
type App struct {
	cfg     *Config
	store   store.Store
	tracker *analytics.Tracker
	rdb     *redis.Client
	server  *server.Server
	service *quiz.Service

	tgSender *telegram.Sender
}

// Bootstrap adapts Build to cmd.Options.
func Bootstrap(c cmd.ConfigCarrier) (cmd.App, error) {
	cfg, ok := c.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", c)
	}
	a, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Build initializes infrastructure and wires the service. On failure every
// component opened so far is closed.
func Build(cfg *Config) (_ *App, err error) {
	infra, err := bootstrap.Run(bootstrap.Options{Config: &cfg.Config, Database: cfg.Database})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
			_ = infra.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	catalog, err := content.LoadOrDefault(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("app: load catalog: %w", err)
	}
	logger.Info(ctx, logger.CompContent, "catalog.loaded",
		slog.String("path", cfg.Content.Path),
		slog.Int("topics", len(catalog.Topics)),
	)

	if a.store, err = openStore(ctx, cfg, infra); err != nil {
		return nil, err
	}

	opts := []quiz.ServiceOption{}

	g, err := a.openGuard(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, quiz.WithGuard(g))

	if a.tracker, err = openTracker(cfg.Analytics); err != nil {
		return nil, err
	}
	if a.tracker != nil {
		opts = append(opts, quiz.WithTracker(a.tracker))
	}

	var m *metrics.Metrics
	if cfg.Server.Metrics {
		m = metrics.New()
		opts = append(opts, quiz.WithRecorder(m))
	}

	opts = append(opts, quiz.WithSender(swiftchat.Channel, swiftchat.NewClient(swiftchat.Options{
		APIURL:       cfg.SwiftChat.APIURL,
		BotID:        cfg.Bot.ID,
		APIKey:       cfg.SwiftChat.APIKey,
		Timeout:      time.Duration(cfg.SwiftChat.TimeoutSeconds) * time.Second,
		MaxRetries:   2,
		ShareMessage: cfg.SwiftChat.ShareMessage,
	})))
	if cfg.Telegram.Enabled {
		a.tgSender = &telegram.Sender{}
		opts = append(opts, quiz.WithSender(telegram.Channel, a.tgSender))
	}

	machine := quiz.NewMachine(catalog, quiz.WithScorecard(cfg.SwiftChat.Scorecard))
	a.service = quiz.NewService(machine, a.store, opts...)
	a.server = server.New(a.service, server.Options{
		Listen:      cfg.Server.Listen,
		Port:        cfg.Server.Port,
		WebhookPath: cfg.Server.WebhookPath,
		BotID:       cfg.Bot.ID,
		RateLimit:   server.NewRateLimitOptions(cfg.RateLimit),
		Metrics:     m,

		ProcessTimeout: time.Duration(cfg.Server.ProcessTimeoutSeconds) * time.Second,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg *Config, infra *bootstrap.Result) (store.Store, error) {
	switch cfg.Store.Driver {
	case coreconfig.StorePostgres:
		return store.NewPostgres(infra.DB), nil
	case coreconfig.StoreMongo:
		s, err := store.ConnectMongo(ctx, store.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	default:
		logger.Warn(ctx, logger.CompStore, "store.memory", slog.String("status", "sessions are lost on restart"))
		return store.NewMemory(), nil
	}
}

func (a *App) openGuard(ctx context.Context) (quiz.Guard, error) {
	rc := a.cfg.Redis
	dedupeTTL := time.Duration(rc.DedupeTTLSeconds) * time.Second
	if rc.Addr == "" {
		return guard.NewLocal(dedupeTTL), nil
	}
	rdb, err := guard.Dial(ctx, rc.Addr, rc.Password, rc.DB)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.rdb = rdb
	return guard.NewRedis(rdb, guard.RedisOptions{
		DedupeTTL: dedupeTTL,
		LockTTL:   time.Duration(rc.LockTTLMS) * time.Millisecond,
	}), nil
}

func openTracker(ac coreconfig.AnalyticsConfig) (*analytics.Tracker, error) {
	switch ac.Driver {
	case coreconfig.AnalyticsRabbitMQ:
		sink, err := analytics.DialRabbitMQ(ac.URL, ac.Exchange)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return analytics.NewTracker(sink, sender.Options{MaxRetries: 3}), nil
	case coreconfig.AnalyticsLog:
		return analytics.NewTracker(analytics.LogSink{}, sender.Options{Workers: 1}), nil
	default:
		return nil, nil
	}
}

// Run serves the webhook and, when enabled, the Telegram bot until ctx ends
// or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	if a.tgSender != nil {
		g.Go(func() error {
			return coretelegram.Run(gctx, coretelegram.RunOptions{
				Config:      a.cfg.Telegram,
				Middlewares: coretelegram.DefaultMiddlewares(a.cfg.RateLimit, nil),
				Routes:      telegram.Routes(a.service, a.cfg.Bot.ID, time.Duration(a.cfg.Server.ProcessTimeoutSeconds)*time.Second),
				OnStart: func(_ context.Context, bot *tele.Bot) error {
					a.tgSender.Attach(bot)
					return nil
				},
			})
		})
	}
	return g.Wait()
}

// Close flushes analytics and closes connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close(ctx))
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	return errors.Join(errs...)
}
