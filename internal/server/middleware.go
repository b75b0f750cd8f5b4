package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/metrics"
	"github.com/m3rciful/quizbot/internal/quiz"
)

// recoverMiddleware turns handler panics into 500 replies.
func recoverMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), logger.CompHTTP, "http.panic",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

// requestLogMiddleware logs one line per request and counts it.
func requestLogMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if m != nil {
			m.ObserveRequest(route, status)
		}
		if route == "/healthz" || route == "/metrics" {
			return
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		} else if status >= http.StatusBadRequest {
			level = slog.LevelWarn
		}
		logger.LogEvent(c.Request.Context(), logger.HTTP, level, "http.request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}

// RateLimitOptions enforces a minimum interval between events of one user.
// Exclude holds inbound kinds (config.EventText, config.EventButton) that
// bypass the limit.
type RateLimitOptions struct {
	Interval time.Duration
	Exclude  map[string]struct{}
}

// NewRateLimitOptions converts the config section.
func NewRateLimitOptions(cfg config.RateLimitConfig) RateLimitOptions {
	opts := RateLimitOptions{
		Interval: time.Duration(cfg.IntervalMS) * time.Millisecond,
		Exclude:  make(map[string]struct{}, len(cfg.ExcludeEvents)),
	}
	for _, e := range cfg.ExcludeEvents {
		opts.Exclude[strings.ToLower(e)] = struct{}{}
	}
	return opts
}

type rateLimiter struct {
	opts RateLimitOptions
	now  func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func newRateLimiter(opts RateLimitOptions) *rateLimiter {
	return &rateLimiter{opts: opts, now: time.Now, lastSeen: make(map[string]time.Time)}
}

func (l *rateLimiter) Allow(in quiz.Inbound) bool {
	if l.opts.Interval <= 0 {
		return true
	}
	kind := config.EventText
	if in.Kind == quiz.InputButton {
		kind = config.EventButton
	}
	if _, skip := l.opts.Exclude[kind]; skip {
		return true
	}

	key := in.BotID + ":" + in.From
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastSeen[key]; ok && now.Sub(last) < l.opts.Interval {
		return false
	}
	l.lastSeen[key] = now
	if len(l.lastSeen) > 4096 {
		for k, t := range l.lastSeen {
			if now.Sub(t) >= l.opts.Interval {
				delete(l.lastSeen, k)
			}
		}
	}
	return true
}
