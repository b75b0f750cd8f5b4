// Package server exposes the SwiftChat webhook over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/m3rciful/quizbot/core/buildinfo"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/metrics"
	"github.com/m3rciful/quizbot/internal/quiz"
	"github.com/m3rciful/quizbot/internal/swiftchat"
)

const (
	defaultProcessTimeout = 30 * time.Second
	shutdownTimeout       = 10 * time.Second
)

// Processor handles one inbound event.
type Processor interface {
	Process(ctx context.Context, in quiz.Inbound) error
}

// Options configures the HTTP server.
type Options struct {
	Listen      string
	Port        int
	WebhookPath string
	BotID       string
	RateLimit   RateLimitOptions
	// Metrics, when set, is fed by the request middleware and served on /metrics.
	Metrics *metrics.Metrics
	// ProcessTimeout bounds one event; the request context's cancellation
	// is not propagated so a dropped connection does not abort a half
	// written session.
	ProcessTimeout time.Duration
}

// Server wraps a gin engine serving the webhook.
type Server struct {
	opts    Options
	proc    Processor
	engine  *gin.Engine
	limiter *rateLimiter
}

// New builds the router.
func New(proc Processor, opts Options) *Server {
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/webhook"
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = defaultProcessTimeout
	}
	s := &Server{
		opts:    opts,
		proc:    proc,
		limiter: newRateLimiter(opts.RateLimit),
	}

	r := gin.New()
	r.Use(recoverMiddleware(), requestLogMiddleware(opts.Metrics))
	r.POST(opts.WebhookPath, s.handleWebhook)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": buildinfo.String()})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	s.engine = r
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Listen, strconv.Itoa(s.opts.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, logger.CompHTTP, "http.listen",
			slog.String("addr", addr),
			slog.String("webhook", s.opts.WebhookPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info(ctx, logger.CompHTTP, "http.stopped")
	return nil
}

func (s *Server) handleWebhook(c *gin.Context) {
	var p swiftchat.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		logger.Warn(c.Request.Context(), logger.CompHTTP, "webhook.bad_json", slog.Any("err", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}
	in, err := p.Inbound(s.opts.BotID)
	if err != nil {
		logger.Warn(c.Request.Context(), logger.CompHTTP, "webhook.invalid", slog.Any("err", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.limiter.Allow(in) {
		ctx := logger.WithEventMeta(c.Request.Context(), in.Channel, in.From, in.BotID)
		logger.Warn(ctx, logger.CompHTTP, "rate_limit", slog.String("kind", in.Kind.String()))
		c.JSON(http.StatusOK, gin.H{"status": "rate_limited"})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.opts.ProcessTimeout)
	defer cancel()
	if err := s.proc.Process(ctx, in); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
