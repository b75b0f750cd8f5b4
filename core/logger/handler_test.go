package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer, format logFormat) (*slog.Logger, *fanoutWriter) {
	w := newFanoutWriter([]io.Writer{buf})
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   w,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return slog.New(h), w
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	log, w := newTestLogger(buf, formatKV)

	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithEventMeta(ctx, "swiftchat", "919876543210", "bot-1")
	LogEvent(ctx, log.With("component", "quiz"), slog.LevelInfo, "event.handled",
		slog.String("status", "OK"),
		slog.String("rule", "greeting"),
	)
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	tokens := strings.Split(strings.TrimSpace(buf.String()), " ")
	expected := []string{"ts=", "level=INFO", "component=quiz", "event=event.handled", "status=ok", "rid=rid-123", "channel=swiftchat", "bot_id=bot-1", "phone=********3210"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), buf.String())
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONDurationAndRID(t *testing.T) {
	buf := &bytes.Buffer{}
	log, w := newTestLogger(buf, formatJSON)

	ctx := WithRID(context.Background(), "12:34:56")
	LogEvent(ctx, log, slog.LevelError, "send.fail",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Any("err", io.ErrUnexpectedEOF),
		slog.String("outcome", "bogus"),
	)
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	line := strings.TrimSpace(buf.String())

	for _, want := range []string{
		`"level":"ERROR"`,
		`"component":"app"`,
		`"rid":"` + CompactRID("12:34:56") + `"`,
		`"rid_full":"12:34:56"`,
		`"duration_ms":2`,
		`"err":"unexpected EOF"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
	if strings.Contains(line, "outcome") {
		t.Fatalf("unknown outcome should be dropped: %s", line)
	}
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newFanoutWriter([]io.Writer{buf})
	h := newStructuredHandler(handlerConfig{level: slog.LevelWarn, writer: w, format: formatKV})
	slog.New(h).Info("hidden")
	_ = w.Flush()
	if buf.Len() != 0 {
		t.Fatalf("info record should be filtered, got %q", buf.String())
	}
}

func TestMaskPhone(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"1234":         "1234",
		"919876543210": "********3210",
	}
	for in, want := range cases {
		if got := MaskPhone(in); got != want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	allowed := 0
	for i := 0; i < 9; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want 3", allowed)
	}
	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
	if n, d := parseRatioSpec("2/5"); n != 2 || d != 5 {
		t.Fatalf("parseRatioSpec = %d/%d", n, d)
	}
	if n, d := parseRatioSpec("10"); n != 1 || d != 10 {
		t.Fatalf("parseRatioSpec = %d/%d", n, d)
	}
}
