// pkg/backtest/stats.go
package backtest

import (
	"math"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// buildReport 按触发顺序折算权益曲线并汇总统计。
// 权益按 equity *= 1 + return 复利，回撤取峰值到当前的最大百分比。
func buildReport(signals []model.BacktestSignal, settings model.BacktestSettings) *model.BacktestReport {
	report := &model.BacktestReport{SignalCount: len(signals), Signals: signals}
	if report.Signals == nil {
		report.Signals = []model.BacktestSignal{}
	}

	var (
		labeled   int
		successes int
		sumReturn float64
		returns   []float64
		winSum    float64
		lossSum   float64
	)
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for i := range signals {
		sig := &signals[i]
		if !sig.Labeled {
			continue
		}
		labeled++
		if sig.Success {
			successes++
		}
		sumReturn += sig.Return
		returns = append(returns, sig.Return)
		if sig.Return > 0 {
			winSum += sig.Return
		} else {
			lossSum += -sig.Return
		}
		equity *= 1 + sig.Return
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}

	report.LabeledCount = labeled
	report.MaxDrawdown = maxDD
	if labeled == 0 {
		return report
	}
	report.SuccessRate = float64(successes) / float64(labeled)
	report.AvgReturn = sumReturn / float64(labeled)
	if lossSum > 0 {
		report.ProfitFactor = winSum / lossSum
	}
	report.Sharpe = sharpe(returns, settings.RiskFreeRate)
	return report
}

// sharpe 按柱收益的均值方差比，不做年化，样本不足两个返回 0
func sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance <= 0 {
		return 0
	}
	return (mean - riskFree) / math.Sqrt(variance)
}
