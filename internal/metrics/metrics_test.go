package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/m3rciful/quizbot/internal/quiz"
)

func TestRecorderCounts(t *testing.T) {
	m := New()
	m.ObserveEvent("swiftchat", "quiz_answer", "ok", 20*time.Millisecond)
	m.ObserveEvent("swiftchat", "quiz_answer", "ok", 30*time.Millisecond)
	m.ObserveSend("swiftchat", quiz.MessageButtons, nil)
	m.ObserveSend("swiftchat", quiz.MessageText, errors.New("boom"))
	m.ObserveStore("get", time.Millisecond, quiz.ErrNotFound)
	m.ObserveStore("put", time.Millisecond, errors.New("conn refused"))
	m.ObserveChallenge(quiz.BadgeSilver)

	if got := testutil.ToFloat64(m.events.WithLabelValues("swiftchat", "quiz_answer", "ok")); got != 2 {
		t.Fatalf("events = %v", got)
	}
	if got := testutil.ToFloat64(m.sends.WithLabelValues("swiftchat", "text", "unknown")); got != 1 {
		t.Fatalf("failed sends = %v", got)
	}
	if got := testutil.ToFloat64(m.storeErrs.WithLabelValues("get")); got != 0 {
		t.Fatalf("not found counted as store error: %v", got)
	}
	if got := testutil.ToFloat64(m.storeErrs.WithLabelValues("put")); got != 1 {
		t.Fatalf("put errors = %v", got)
	}
	if got := testutil.ToFloat64(m.challenges.WithLabelValues("Silver")); got != 1 {
		t.Fatalf("challenges = %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveRequest("/webhook", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{`quizbot_http_requests_total{code="200",route="/webhook"} 1`, "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition", want)
		}
	}
}
