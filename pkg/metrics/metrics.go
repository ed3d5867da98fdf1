// pkg/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TicksConsumed 消费的行情推送总数
	TicksConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alpharadar_ticks_consumed_total",
			Help: "消费的行情推送总数",
		},
	)

	// TicksDropped 分片队列满被丢弃的行情推送数
	TicksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alpharadar_ticks_dropped_total",
			Help: "分片队列满被丢弃的行情推送数",
		},
	)

	// Evaluations 按判定结果统计的整树评估次数
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alpharadar_evaluations_total",
			Help: "整树评估次数",
		},
		[]string{"verdict"},
	)

	// EvalDuration 单次整树评估耗时
	EvalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alpharadar_evaluation_duration_seconds",
			Help:    "单次整树评估耗时",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)

	// Fires 成功触发次数
	Fires = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alpharadar_fires_total",
			Help: "成功触发次数",
		},
	)

	// Suppressions 冷却期压制次数
	Suppressions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alpharadar_suppressions_total",
			Help: "条件成立但处于冷却期被压制的次数",
		},
	)

	// UnknownLeaves 读数缺失导致 unknown 的叶子判定次数
	UnknownLeaves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alpharadar_unknown_leaves_total",
			Help: "读数缺失导致 unknown 的叶子判定次数",
		},
	)

	// EventsDropped 事件通道满被丢弃的触发事件数
	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alpharadar_events_dropped_total",
			Help: "事件通道满被丢弃的触发事件数",
		},
	)

	// ActiveAlerts 引擎当前装载的预警数
	ActiveAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alpharadar_active_alerts",
			Help: "引擎当前装载的预警数",
		},
	)

	// BacktestRuns 按结果统计的回测次数
	BacktestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alpharadar_backtest_runs_total",
			Help: "回测执行次数",
		},
		[]string{"result"},
	)

	// TicksPublished 采集端发布的行情推送数
	TicksPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alpharadar_ticks_published_total",
			Help: "采集端发布的行情推送数",
		},
	)

	// CollectorErrors 采集端拉取或发布失败次数
	CollectorErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alpharadar_collector_errors_total",
			Help: "采集端拉取或发布失败次数",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksConsumed,
		TicksDropped,
		Evaluations,
		EvalDuration,
		Fires,
		Suppressions,
		UnknownLeaves,
		EventsDropped,
		ActiveAlerts,
		BacktestRuns,
		TicksPublished,
		CollectorErrors,
	)
}
