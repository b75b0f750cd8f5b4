package swiftchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/netutil"
	"github.com/m3rciful/quizbot/internal/quiz"
)

// Options configures a Client.
type Options struct {
	APIURL       string
	BotID        string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	ShareMessage string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// Transport replaces the pooled transport of the default client.
	Transport http.RoundTripper
}

// Client posts messages to {APIURL}/{BotID}/messages.
type Client struct {
	endpoint     string
	apiKey       string
	http         *http.Client
	maxRetries   int
	backoff      time.Duration
	shareMessage string
}

// NewClient builds a client from opts.
func NewClient(opts Options) *Client {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Send owns retries; the transport makes exactly one attempt.
		httpClient = netutil.BuildHTTPClient(netutil.ClientOptions{
			Timeout:    opts.Timeout,
			MaxRetries: 0,
			Base:       opts.Transport,
		})
	}
	return &Client{
		endpoint:     strings.TrimRight(opts.APIURL, "/") + "/" + opts.BotID + "/messages",
		apiKey:       opts.APIKey,
		http:         httpClient,
		maxRetries:   opts.MaxRetries,
		backoff:      opts.RetryBackoff,
		shareMessage: opts.ShareMessage,
	}
}

// Endpoint returns the messages URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Send encodes msg for to and posts it. 429 and 5xx replies and failed dials
// are retried up to MaxRetries times; a request that may have reached the
// platform without a reply is not resent.
func (c *Client) Send(ctx context.Context, to string, msg quiz.Message) error {
	payload, err := encode(to, msg, c.shareMessage)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("swiftchat: encode: %w", err)
	}

	start := time.Now()
	attempts := c.maxRetries + 1
	for attempt := 1; ; attempt++ {
		err = c.post(ctx, data)
		if err == nil {
			logger.Debug(ctx, logger.CompSwiftChat, "send.ok",
				slog.String("message_kind", string(msg.Kind)),
				slog.Int("attempt", attempt),
				slog.Duration("duration", logger.Took(start)),
			)
			return nil
		}
		if attempt >= attempts || !resendable(err) {
			return err
		}
		delay := c.backoff * time.Duration(attempt)
		logger.Debug(ctx, logger.CompSwiftChat, "send.retry",
			slog.String("status", "retry"),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error_kind", netutil.ClassifyError(err)),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func resendable(err error) bool {
	var statusErr *netutil.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return netutil.NotSent(err)
}

func (c *Client) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("swiftchat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("swiftchat: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &netutil.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
