package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 弹幕连接相关的 Prometheus 指标。
type Metrics struct {
	FramesReceived    *prometheus.CounterVec
	MessagesEmitted   *prometheus.CounterVec
	HeartbeatsSent    prometheus.Counter
	ProtocolErrors    *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	SinkEventsDropped prometheus.Counter
}

// NewMetrics 在 reg 上注册指标；测试中传入独立的 prometheus.NewRegistry()。
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of top-level frames received, by opcode",
		}, []string{"opcode"}),
		MessagesEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_emitted_total",
			Help:      "Total number of text messages forwarded to the event sink, by cmd",
		}, []string{"cmd"}),
		HeartbeatsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Total number of heartbeat frames sent",
		}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of protocol errors, by kind",
		}, []string{"kind"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of running danmaku sessions",
		}),
		SinkEventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_events_dropped_total",
			Help:      "Events dropped because the delivery queue was full",
		}),
	}
}

// NopMetrics 注册到一次性 registry，供不关心指标的调用方使用。
func NopMetrics() *Metrics {
	return NewMetrics("danmaku", prometheus.NewRegistry())
}
