// Package metrics exposes Prometheus collectors for the quiz service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/quizbot/core/netutil"
	"github.com/m3rciful/quizbot/internal/quiz"
)

const namespace = "quizbot"

// Metrics implements quiz.Recorder and counts HTTP traffic.
type Metrics struct {
	reg *prometheus.Registry

	events     *prometheus.CounterVec
	eventTime  *prometheus.HistogramVec
	sends      *prometheus.CounterVec
	storeTime  *prometheus.HistogramVec
	storeErrs  *prometheus.CounterVec
	challenges *prometheus.CounterVec
	requests   *prometheus.CounterVec
}

// New registers collectors on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events by channel, matched rule and outcome.",
		}, []string{"channel", "rule", "outcome"}),
		eventTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one inbound event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages by channel, kind and result.",
		}, []string{"channel", "kind", "result"}),
		storeTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_duration_seconds",
			Help:      "User store latency by operation.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
		storeErrs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "User store failures by operation.",
		}, []string{"op"}),
		challenges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_completed_total",
			Help:      "Completed quizzes by badge.",
		}, []string{"badge"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Webhook requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveEvent implements quiz.Recorder.
func (m *Metrics) ObserveEvent(channel, rule, outcome string, took time.Duration) {
	m.events.WithLabelValues(channel, rule, outcome).Inc()
	m.eventTime.WithLabelValues(channel).Observe(took.Seconds())
}

// ObserveSend implements quiz.Recorder.
func (m *Metrics) ObserveSend(channel string, kind quiz.MessageKind, err error) {
	result := "ok"
	if err != nil {
		result = netutil.ClassifyError(err)
	}
	m.sends.WithLabelValues(channel, string(kind), result).Inc()
}

// ObserveStore implements quiz.Recorder. Not-found reads are not failures.
func (m *Metrics) ObserveStore(op string, took time.Duration, err error) {
	m.storeTime.WithLabelValues(op).Observe(took.Seconds())
	if err != nil && !errors.Is(err, quiz.ErrNotFound) {
		m.storeErrs.WithLabelValues(op).Inc()
	}
}

// ObserveChallenge implements quiz.Recorder.
func (m *Metrics) ObserveChallenge(badge quiz.Badge) {
	m.challenges.WithLabelValues(string(badge)).Inc()
}

// ObserveRequest counts one HTTP request.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
