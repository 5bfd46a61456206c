package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/auditsnap/internal/progress"
)

// PrometheusSink exports lifecycle metrics: events per stage, reports in
// flight, and time from submission to a terminal status.
type PrometheusSink struct {
	events         *prometheus.CounterVec
	inFlight       prometheus.Gauge
	timeToTerminal *prometheus.HistogramVec
	watchTimeouts  *prometheus.CounterVec

	tracker *reportTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditsnap_lifecycle_events_total",
			Help: "Lifecycle events partitioned by stage.",
		}, []string{"stage"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditsnap_reports_in_flight",
			Help: "Reports submitted but not yet terminal.",
		}),
		timeToTerminal: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditsnap_report_time_to_terminal_seconds",
			Help:    "Wall time from submission to a terminal status.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		watchTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditsnap_watch_timeouts_total",
			Help: "Watch loops that gave up before a terminal status, by host.",
		}, []string{"host"}),
		tracker: newReportTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.inFlight,
		s.timeToTerminal,
		s.watchTimeouts,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register lifecycle collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	s.events.WithLabelValues(string(evt.Stage)).Inc()
	switch evt.Stage {
	case progress.StageSubmitted:
		if s.tracker.start(evt.ReportID) {
			s.inFlight.Inc()
		}
	case progress.StageCompleted:
		s.finish(evt, "completed")
	case progress.StageFailed:
		s.finish(evt, "failed")
	case progress.StageWatchTimeout:
		host := evt.Host
		if host == "" {
			host = "unknown"
		}
		s.watchTimeouts.WithLabelValues(host).Inc()
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	if evt.Dur > 0 {
		s.timeToTerminal.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.ReportID) {
		s.inFlight.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type reportTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newReportTracker() *reportTracker {
	return &reportTracker{running: make(map[string]struct{})}
}

func (t *reportTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *reportTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
