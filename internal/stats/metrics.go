package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 包含所有统计落库指标
type Metrics struct {
	FlushTotal    prometheus.Counter
	FlushErrors   prometheus.Counter
	FlushDuration prometheus.Histogram
	ChatsRetained prometheus.Gauge
	QueueDepth    prometheus.Gauge
}

// NewMetrics 创建统计落库指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		FlushTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_flush_total",
				Help:      "Total stats flush cycles",
			},
		),
		FlushErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_flush_errors_total",
				Help:      "Total storage errors during stats flush",
			},
		),
		FlushDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stats_flush_duration_seconds",
				Help:      "Stats flush cycle duration in seconds",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		ChatsRetained: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stats_chats_retained",
				Help:      "Chats retained in the queue after the last flush",
			},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stats_queue_depth",
				Help:      "Queued stat entries awaiting persistence",
			},
		),
	}
}

// RecordFlush 记录一轮落库
func (m *Metrics) RecordFlush(chats, retained int, duration time.Duration) {
	m.FlushTotal.Inc()
	m.FlushDuration.Observe(duration.Seconds())
	m.ChatsRetained.Set(float64(retained))
}
