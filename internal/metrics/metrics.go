package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Import 导入任务指标
type Import struct {
	runs        *prometheus.CounterVec
	rows        prometheus.Counter
	parseErrors *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewImport 创建并注册导入指标；reg 为 nil 时不注册
func NewImport(reg prometheus.Registerer) *Import {
	m := &Import{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "excel2web",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Finished import runs by terminal status.",
		}, []string{"status"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "excel2web",
			Subsystem: "import",
			Name:      "rows_loaded_total",
			Help:      "Rows written by import runs.",
		}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "excel2web",
			Subsystem: "import",
			Name:      "validation_errors_total",
			Help:      "Validation errors reported by sheet parsers.",
		}, []string{"sheet"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "excel2web",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Wall time of import runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.rows, m.parseErrors, m.duration)
	}
	return m
}

// ObserveRun 记录一次完成的导入
func (m *Import) ObserveRun(status string, rows int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.rows.Add(float64(rows))
	m.duration.Observe(elapsed.Seconds())
}

// ObserveValidationError 记录一条解析错误
func (m *Import) ObserveValidationError(sheet string) {
	if m == nil {
		return
	}
	m.parseErrors.WithLabelValues(sheet).Inc()
}
