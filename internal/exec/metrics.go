package exec

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 包含所有命令执行指标
type Metrics struct {
	// 执行指标
	ExecutionsRunning prometheus.Gauge
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// 状态消息指标
	StatusEditsTotal prometheus.Counter
	StatusEditErrors prometheus.Counter

	// 输出指标
	OutputBytesTotal prometheus.Counter
	TruncationsTotal prometheus.Counter
}

// NewMetrics 创建命令执行指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ExecutionsRunning: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "executions_running",
				Help:      "Number of currently running command executions",
			},
		),
		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total command executions by outcome",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Command execution duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),
		StatusEditsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_edits_total",
				Help:      "Total status message edits",
			},
		),
		StatusEditErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_edit_errors_total",
				Help:      "Total status message edit errors",
			},
		),
		OutputBytesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_bytes_total",
				Help:      "Total bytes of command output collected",
			},
		),
		TruncationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_truncations_total",
				Help:      "Total executions whose output exceeded capacity",
			},
		),
	}
}

// RecordStart 记录执行开始
func (m *Metrics) RecordStart() {
	m.ExecutionsRunning.Inc()
}

// RecordComplete 记录执行完成
func (m *Metrics) RecordComplete(outcome string, duration time.Duration) {
	m.ExecutionsRunning.Dec()
	m.ExecutionsTotal.WithLabelValues(outcome).Inc()
	m.ExecutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStatusEdit 记录一次状态消息编辑
func (m *Metrics) RecordStatusEdit(success bool) {
	m.StatusEditsTotal.Inc()
	if !success {
		m.StatusEditErrors.Inc()
	}
}
