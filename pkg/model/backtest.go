// pkg/model/backtest.go
package model

import (
	"time"
)

// HistoricalPoint 回测序列中的一根柱：时间戳加该时刻的全部读数。
// 读数键为 SeriesKey(symbol, metricKey)。
type HistoricalPoint struct {
	AsOf     time.Time          `json:"as_of"`
	Readings map[string]float64 `json:"readings"`
}

// SeriesKey 回测读数键：标的加读数规范键
func SeriesKey(symbol, metricKey string) string {
	return symbol + "|" + metricKey
}

// BacktestSettings 回测参数
type BacktestSettings struct {
	Cooldown         int     `json:"cooldown"`          // 秒，与在线冷却同语义
	MaxTriggers      int     `json:"max_triggers"`      // 0 表示不限
	Horizon          int     `json:"horizon"`           // 持有期柱数，正向收益标注用
	SuccessThreshold float64 `json:"success_threshold"` // 持有期收益达到该值记为成功
	RiskFreeRate     float64 `json:"risk_free_rate"`    // 按柱的无风险收益率
	PriceKey         string  `json:"price_key"`         // 进出场价格的读数键
}

// BacktestSignal 一次触发信号及其进出场上下文
type BacktestSignal struct {
	FiredAt    time.Time `json:"fired_at"`
	BarIndex   int       `json:"bar_index"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	Return     float64   `json:"return"`
	Success    bool      `json:"success"`
	// Labeled 为 false 表示持有期超出序列末尾，该信号不计入成功率与收益统计
	Labeled bool `json:"labeled"`
}

// BacktestReport 回测报告
type BacktestReport struct {
	Signals      []BacktestSignal `json:"signals"`
	SignalCount  int              `json:"signal_count"`
	LabeledCount int              `json:"labeled_count"`
	SuccessRate  float64          `json:"success_rate"`
	AvgReturn    float64          `json:"avg_return"`
	MaxDrawdown  float64          `json:"max_drawdown"`
	Sharpe       float64          `json:"sharpe"`
	ProfitFactor float64          `json:"profit_factor"`
	Bars         int              `json:"bars"`
	StartAt      time.Time        `json:"start_at"`
	EndAt        time.Time        `json:"end_at"`
}
