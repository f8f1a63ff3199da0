// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/session"
)

const namespace = "lure"

var _ session.Observer = (*Metrics)(nil)

type (
	// Metrics owns the collectors of one process. Each instance has its own
	// registry so tests and embedded uses never collide.
	Metrics struct {
		registry *prometheus.Registry

		sessions        *prometheus.CounterVec
		activeSessions  *prometheus.GaugeVec
		sessionDuration *prometheus.HistogramVec
		dispatches      *prometheus.CounterVec
		cacheLookups    *prometheus.CounterVec
		execDuration    *prometheus.HistogramVec
		authAttempts    *prometheus.CounterVec
	}

	cacheObserver struct {
		hits, misses prometheus.Counter
	}

	instrumentedSandbox struct {
		next     command.Sandbox
		service  string
		duration *prometheus.HistogramVec
	}
)

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions opened.",
		}, []string{"service"}),
		activeSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently open.",
		}, []string{"service"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of closed sessions.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"service"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Command lines dispatched, by outcome.",
		}, []string{"service", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Live-execution response cache lookups, by result.",
		}, []string{"service", "result"}),
		execDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sandbox_exec_duration_seconds",
			Help:      "Duration of sandbox executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "exit_code"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts, by method and result.",
		}, []string{"service", "method", "result"}),
	}

	m.registry.MustRegister(
		m.sessions,
		m.activeSessions,
		m.sessionDuration,
		m.dispatches,
		m.cacheLookups,
		m.execDuration,
		m.authAttempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionStarted implements session.Observer.
func (m *Metrics) SessionStarted(service string) {
	m.sessions.WithLabelValues(service).Inc()
	m.activeSessions.WithLabelValues(service).Inc()
}

// SessionEnded implements session.Observer.
func (m *Metrics) SessionEnded(service string, lifetime time.Duration) {
	m.activeSessions.WithLabelValues(service).Dec()
	m.sessionDuration.WithLabelValues(service).Observe(lifetime.Seconds())
}

// Dispatched implements session.Observer.
func (m *Metrics) Dispatched(service string, outcome session.Outcome) {
	m.dispatches.WithLabelValues(service, string(outcome)).Inc()
}

// AuthAttempt counts one authentication attempt.
func (m *Metrics) AuthAttempt(service, method string, accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.authAttempts.WithLabelValues(service, method, result).Inc()
}

// CacheObserver returns a command.Observer counting cache lookups of service.
func (m *Metrics) CacheObserver(service string) command.Observer {
	return cacheObserver{
		hits:   m.cacheLookups.WithLabelValues(service, "hit"),
		misses: m.cacheLookups.WithLabelValues(service, "miss"),
	}
}

func (o cacheObserver) CacheLookup(hit bool) {
	if hit {
		o.hits.Inc()
		return
	}
	o.misses.Inc()
}

// InstrumentSandbox times every execution of next on behalf of service.
func (m *Metrics) InstrumentSandbox(service string, next command.Sandbox) command.Sandbox {
	if next == nil {
		return nil
	}
	return &instrumentedSandbox{next: next, service: service, duration: m.execDuration}
}

func (s *instrumentedSandbox) Exec(ctx context.Context, target, body string) (command.ExecResult, error) {
	start := time.Now()
	res, err := s.next.Exec(ctx, target, body)
	code := strconv.Itoa(res.ExitCode)
	if err != nil {
		code = "error"
	}
	s.duration.WithLabelValues(s.service, code).Observe(time.Since(start).Seconds())
	return res, err
}
