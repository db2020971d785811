// Package metrics exposes Prometheus counters for workspace activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the workspace counters. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	turns        *prometheus.CounterVec
	playback     *prometheus.CounterVec
	quiz         *prometheus.CounterVec
	annotations  *prometheus.CounterVec
	sessionLoads *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	tutorCalls   *prometheus.CounterVec
	sweeps       prometheus.Counter
	connections  prometheus.Gauge
}

// New registers all counters on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastminute_agent_turns_total",
				Help: "Agent turns by route and outcome",
			},
			[]string{"route", "status"},
		),
		playback: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastminute_playback_total",
				Help: "Speech playback requests by outcome",
			},
			[]string{"outcome"},
		),
		quiz: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastminute_quiz_submissions_total",
				Help: "Quiz submissions by kind and result",
			},
			[]string{"kind", "result"},
		),
		annotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastminute_annotations_published_total",
				Help: "Annotations published by type",
			},
			[]string{"type"},
		),
		sessionLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastminute_session_loads_total",
				Help: "Session loads by result",
			},
			[]string{"result"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastminute_session_cache_lookups_total",
				Help: "Session cache lookups by result",
			},
			[]string{"result"},
		),
		tutorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastminute_tutor_requests_total",
				Help: "Tutor requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lastminute_sessions_swept_total",
			Help: "Expired sessions removed by the TTL worker",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lastminute_workspace_connections",
			Help: "Open workspace connections",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.turns,
		r.playback,
		r.quiz,
		r.annotations,
		r.sessionLoads,
		r.cacheLookups,
		r.tutorCalls,
		r.sweeps,
		r.connections,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Turn records a completed agent turn.
func (r *Recorder) Turn(route string, failed bool) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(route, status(!failed)).Inc()
}

// Playback records a speech outcome.
func (r *Recorder) Playback(outcome string) {
	if r == nil {
		return
	}
	r.playback.WithLabelValues(outcome).Inc()
}

// QuizSubmit records a graded submission.
func (r *Recorder) QuizSubmit(kind string, passed bool) {
	if r == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	r.quiz.WithLabelValues(kind, result).Inc()
}

// AnnotationPublished records a published annotation.
func (r *Recorder) AnnotationPublished(annotationType string) {
	if r == nil {
		return
	}
	r.annotations.WithLabelValues(annotationType).Inc()
}

// SessionLoad records a session lookup.
func (r *Recorder) SessionLoad(found bool) {
	if r == nil {
		return
	}
	result := "missing"
	if found {
		result = "found"
	}
	r.sessionLoads.WithLabelValues(result).Inc()
}

// CacheLookup records a session cache lookup.
func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// TutorRequest records a tutor endpoint call.
func (r *Recorder) TutorRequest(endpoint string, ok bool) {
	if r == nil {
		return
	}
	r.tutorCalls.WithLabelValues(endpoint, status(ok)).Inc()
}

// Swept records sessions removed by the TTL worker.
func (r *Recorder) Swept(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.sweeps.Add(float64(n))
}

// ConnectionOpened increments the open connection gauge.
func (r *Recorder) ConnectionOpened() {
	if r == nil {
		return
	}
	r.connections.Inc()
}

// ConnectionClosed decrements the open connection gauge.
func (r *Recorder) ConnectionClosed() {
	if r == nil {
		return
	}
	r.connections.Dec()
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
