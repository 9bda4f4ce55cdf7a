// Package observability 级联删除与清理任务的 Prometheus 指标
//
// 所有方法对 nil *Metrics 安全，测试和命令行工具可以不注册指标
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "zhulink"

// Task status labels
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusPanicked = "panicked"
)

type Metrics struct {
	// TasksTotal 异步任务结束计数，labels: kind, status
	TasksTotal *prometheus.CounterVec
	// TasksDropped 队列已满被丢弃的任务
	TasksDropped prometheus.Counter
	// TaskDuration 单个异步任务耗时，labels: kind
	TaskDuration *prometheus.HistogramVec
	// QueueDepth 当前排队的任务数
	QueueDepth prometheus.Gauge

	// RowsSoftDeleted 实际被标记删除的行数，labels: kind
	RowsSoftDeleted *prometheus.CounterVec
	// RowsPurged 清理任务物理删除的行数，labels: kind
	RowsPurged *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	initOnce       sync.Once
)

// Init 在默认 registry 上注册指标，只在服务启动时调用一次
func Init() *Metrics {
	initOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics 在指定 registry 上注册，测试使用 prometheus.NewRegistry() 隔离
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cascade",
			Name:      "tasks_total",
			Help:      "Cascade tasks finished, by kind and status",
		}, []string{"kind", "status"}),
		TasksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cascade",
			Name:      "tasks_dropped_total",
			Help:      "Cascade tasks dropped because the queue was full",
		}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cascade",
			Name:      "task_duration_seconds",
			Help:      "Cascade task duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"kind"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cascade",
			Name:      "queue_depth",
			Help:      "Cascade tasks waiting in the queue",
		}),
		RowsSoftDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cascade",
			Name:      "rows_soft_deleted_total",
			Help:      "Rows marked deleted, by kind",
		}, []string{"kind"}),
		RowsPurged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reaper",
			Name:      "rows_purged_total",
			Help:      "Rows permanently removed by the retention reaper, by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) TaskFinished(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(kind, status).Inc()
	m.TaskDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) TaskDropped() {
	if m == nil {
		return
	}
	m.TasksDropped.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) SoftDeleted(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsSoftDeleted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Purged(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsPurged.WithLabelValues(kind).Add(float64(n))
}
