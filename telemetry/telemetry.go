// Package telemetry exposes notifylist metrics. Every metric is a no-op until
// InitializeTelemetry runs with Prometheus enabled.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/maxpert/notifylist/cfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "notifylist"

var registry *prometheus.Registry

type Histogram interface {
	Observe(float64)
}

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
	SetToCurrentTime()
}

type CounterVec interface {
	With(labels ...string) Counter
}

// GaugeVec is a labeled gauge. Reset drops every label combination seen so far.
type GaugeVec interface {
	With(labels ...string) Gauge
	Reset()
}

type HistogramVec interface {
	With(labels ...string) Histogram
}

// NoopStat satisfies Counter, Gauge and Histogram and discards everything
type NoopStat struct{}

func (NoopStat) Observe(float64)   {}
func (NoopStat) Set(float64)       {}
func (NoopStat) Inc()              {}
func (NoopStat) Dec()              {}
func (NoopStat) Add(float64)       {}
func (NoopStat) Sub(float64)       {}
func (NoopStat) SetToCurrentTime() {}

type noopCounterVec struct{}
type noopGaugeVec struct{}
type noopHistogramVec struct{}

func (noopCounterVec) With(...string) Counter     { return NoopStat{} }
func (noopGaugeVec) With(...string) Gauge         { return NoopStat{} }
func (noopGaugeVec) Reset()                       {}
func (noopHistogramVec) With(...string) Histogram { return NoopStat{} }

type counterVec struct{ vec *prometheus.CounterVec }
type gaugeVec struct{ vec *prometheus.GaugeVec }
type histogramVec struct{ vec *prometheus.HistogramVec }

func (v counterVec) With(values ...string) Counter     { return v.vec.WithLabelValues(values...) }
func (v gaugeVec) With(values ...string) Gauge         { return v.vec.WithLabelValues(values...) }
func (v gaugeVec) Reset()                              { v.vec.Reset() }
func (v histogramVec) With(values ...string) Histogram { return v.vec.WithLabelValues(values...) }

// opts carries the namespace and node label shared by every metric
func opts(name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"node_id": nodeLabel()},
	}
}

func histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	o := opts(name, help)
	return prometheus.HistogramOpts{
		Namespace:   o.Namespace,
		Name:        o.Name,
		Help:        o.Help,
		ConstLabels: o.ConstLabels,
		Buckets:     buckets,
	}
}

func register[T prometheus.Collector](c T) T {
	registry.MustRegister(c)
	return c
}

func NewCounter(name, help string) Counter {
	if registry == nil {
		return NoopStat{}
	}
	return register(prometheus.NewCounter(prometheus.CounterOpts(opts(name, help))))
}

func NewGauge(name, help string) Gauge {
	if registry == nil {
		return NoopStat{}
	}
	return register(prometheus.NewGauge(prometheus.GaugeOpts(opts(name, help))))
}

// NewHistogram creates a histogram. nil buckets use the Prometheus defaults.
func NewHistogram(name, help string, buckets []float64) Histogram {
	if registry == nil {
		return NoopStat{}
	}
	return register(prometheus.NewHistogram(histogramOpts(name, help, buckets)))
}

func NewCounterVec(name, help string, labels []string) CounterVec {
	if registry == nil {
		return noopCounterVec{}
	}
	return counterVec{register(prometheus.NewCounterVec(prometheus.CounterOpts(opts(name, help)), labels))}
}

func NewGaugeVec(name, help string, labels []string) GaugeVec {
	if registry == nil {
		return noopGaugeVec{}
	}
	return gaugeVec{register(prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(name, help)), labels))}
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) HistogramVec {
	if registry == nil {
		return noopHistogramVec{}
	}
	return histogramVec{register(prometheus.NewHistogramVec(histogramOpts(name, help, buckets), labels))}
}

// InitializeTelemetry creates the Prometheus registry when enabled in config.
// It must run before InitMetrics.
func InitializeTelemetry() {
	if !cfg.Config.Prometheus.Enabled {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	log.Info().Msg("Prometheus metrics enabled, served at /metrics on the server port")
}

func nodeLabel() string {
	return strconv.FormatUint(cfg.Config.NodeID, 10)
}

// GetMetricsHandler returns the /metrics handler, or nil when Prometheus is disabled
func GetMetricsHandler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
