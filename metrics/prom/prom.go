// Package prom exports link metrics to Prometheus.
package prom

import (
	"net/http"

	"github.com/openai/snap-o-link/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// SessionObserver exports session metrics to Prometheus.
type SessionObserver struct {
	openGauge       prometheus.Gauge
	handshakeTotal  *prometheus.CounterVec
	highEnqueued    prometheus.Counter
	lowEnqueued     prometheus.Counter
	lowDropped      prometheus.Counter
}

// NewSessionObserver registers session metrics on the registry.
func NewSessionObserver(reg *prometheus.Registry) *SessionObserver {
	o := &SessionObserver{
		openGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snaplink_sessions_open",
			Help: "Current open session count.",
		}),
		handshakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snaplink_handshakes_total",
			Help: "Handshake attempts by result.",
		}, []string{"result"}),
		highEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplink_high_priority_enqueued_total",
			Help: "Records enqueued on the high-priority queue.",
		}),
		lowEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplink_low_priority_enqueued_total",
			Help: "Records enqueued on the low-priority queue.",
		}),
		lowDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplink_low_priority_dropped_total",
			Help: "Low-priority records dropped due to queue overflow.",
		}),
	}
	reg.MustRegister(o.openGauge, o.handshakeTotal, o.highEnqueued, o.lowEnqueued, o.lowDropped)
	return o
}

func (o *SessionObserver) SessionOpened() { o.openGauge.Inc() }
func (o *SessionObserver) SessionClosed() { o.openGauge.Dec() }
func (o *SessionObserver) Handshake(result metrics.HandshakeResult) {
	o.handshakeTotal.WithLabelValues(string(result)).Inc()
}
func (o *SessionObserver) HighPriorityEnqueued() { o.highEnqueued.Inc() }
func (o *SessionObserver) LowPriorityEnqueued()  { o.lowEnqueued.Inc() }
func (o *SessionObserver) LowPriorityDropped(uint64) { o.lowDropped.Inc() }

// BufferObserver exports event-buffer metrics to Prometheus.
type BufferObserver struct {
	events prometheus.Gauge
	bytes  prometheus.Gauge
}

// NewBufferObserver registers buffer metrics on the registry.
func NewBufferObserver(reg *prometheus.Registry) *BufferObserver {
	o := &BufferObserver{
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snaplink_buffer_events",
			Help: "Current buffered event count.",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snaplink_buffer_bytes",
			Help: "Current approximate buffered byte size.",
		}),
	}
	reg.MustRegister(o.events, o.bytes)
	return o
}

func (o *BufferObserver) BufferSize(events int, approxBytes int64) {
	o.events.Set(float64(events))
	o.bytes.Set(float64(approxBytes))
}
