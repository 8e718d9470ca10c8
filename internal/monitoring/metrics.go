package monitoring

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "impact_watcher"

// Pass outcomes.
const (
	PassCompleted  = "completed"
	PassFetchError = "fetch_error"
	PassPanic      = "panic"
)

// Post outcomes.
const (
	PostSkippedSeen  = "skipped_seen"
	PostSkippedEmpty = "skipped_empty"
	PostNotAlertable = "not_alertable"
	PostAlerted      = "alerted"
	PostAlertFailed  = "alert_failed"
)

// Collector owns the watcher's Prometheus metrics on a private registry.
// All methods are safe on a nil receiver so metrics stay optional.
type Collector struct {
	registry *prometheus.Registry

	passes              *prometheus.CounterVec
	passDuration        prometheus.Histogram
	posts               *prometheus.CounterVec
	alerts              *prometheus.CounterVec
	classifierFallbacks *prometheus.CounterVec
	cursorWrites        *prometheus.CounterVec
	lastPass            prometheus.Gauge

	lastPassUnix atomic.Int64
}

// NewCollector registers every metric plus the Go and process collectors.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.passes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "passes_total",
		Help:      "Polling passes by outcome",
	}, []string{"outcome"})

	c.passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_duration_seconds",
		Help:      "Wall time of a polling pass",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	c.posts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_total",
		Help:      "Fetched posts by processing result",
	}, []string{"result"})

	c.alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_total",
		Help:      "Alert deliveries by direction and status",
	}, []string{"direction", "status"})

	c.classifierFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifier_fallbacks_total",
		Help:      "Classifier answers replaced by neutral defaults, by reason",
	}, []string{"reason"})

	c.cursorWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cursor_writes_total",
		Help:      "Cursor persistence attempts by status",
	}, []string{"status"})

	c.lastPass = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_pass_timestamp_seconds",
		Help:      "Unix time of the last finished pass",
	})

	c.registry.MustRegister(
		c.passes,
		c.passDuration,
		c.posts,
		c.alerts,
		c.classifierFallbacks,
		c.cursorWrites,
		c.lastPass,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the private registry for handlers and tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// PassFinished records a pass outcome and its duration.
func (c *Collector) PassFinished(outcome string, started, finished time.Time) {
	if c == nil {
		return
	}
	c.passes.WithLabelValues(outcome).Inc()
	c.passDuration.Observe(finished.Sub(started).Seconds())
	c.lastPass.Set(float64(finished.Unix()))
	c.lastPassUnix.Store(finished.Unix())
}

// Post counts one processed post.
func (c *Collector) Post(result string) {
	if c == nil {
		return
	}
	c.posts.WithLabelValues(result).Inc()
}

// Alert counts one delivery attempt.
func (c *Collector) Alert(direction string, err error) {
	if c == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	c.alerts.WithLabelValues(direction, status).Inc()
}

// ClassifierFallback counts one neutral substitution.
func (c *Collector) ClassifierFallback(reason string) {
	if c == nil {
		return
	}
	c.classifierFallbacks.WithLabelValues(reason).Inc()
}

// CursorWrite counts one persistence attempt.
func (c *Collector) CursorWrite(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	c.cursorWrites.WithLabelValues(status).Inc()
}

// LastPass returns the finish time of the most recent pass, zero if none ran.
func (c *Collector) LastPass() time.Time {
	if c == nil {
		return time.Time{}
	}
	unix := c.lastPassUnix.Load()
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
