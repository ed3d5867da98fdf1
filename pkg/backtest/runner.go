// pkg/backtest/runner.go
package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dewei/AlphaRadar/pkg/engine"
	"github.com/dewei/AlphaRadar/pkg/feed"
	"github.com/dewei/AlphaRadar/pkg/metrics"
	"github.com/dewei/AlphaRadar/pkg/model"
)

// Runner 回测执行器。与在线扫描共用同一套评估器与生命周期规则，
// 每次运行使用全新的内存状态，不触碰任何在线状态。
type Runner struct {
	evaluator *engine.Evaluator
	lifecycle *engine.Lifecycle
}

// NewRunner 创建回测执行器
func NewRunner() *Runner {
	return &Runner{
		evaluator: engine.NewEvaluator(),
		lifecycle: engine.NewLifecycle(),
	}
}

// Run 按时间顺序重放序列，冷却与触发上限按在线规则执行。
// 同一棵树加同一序列的两次运行产生完全相同的触发时间戳。
func (r *Runner) Run(ctx context.Context, root *model.ConditionNode, series []model.HistoricalPoint, settings model.BacktestSettings) (report *model.BacktestReport, err error) {
	defer func() {
		if err != nil {
			metrics.BacktestRuns.WithLabelValues("error").Inc()
		} else {
			metrics.BacktestRuns.WithLabelValues("ok").Inc()
		}
	}()

	if result := engine.ValidateTree(root); !result.Valid {
		return nil, fmt.Errorf("条件树校验失败: %s", strings.Join(result.Errors, "; "))
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("回测序列为空")
	}
	for i := 1; i < len(series); i++ {
		if !series[i].AsOf.After(series[i-1].AsOf) {
			return nil, fmt.Errorf("回测序列时间戳必须严格递增: 第 %d 根柱 %s 不晚于前一根 %s",
				i, series[i].AsOf.Format(time.RFC3339), series[i-1].AsOf.Format(time.RFC3339))
		}
	}
	if settings.PriceKey == "" {
		return nil, fmt.Errorf("缺少进出场价格键")
	}
	if settings.Horizon <= 0 {
		return nil, fmt.Errorf("持有期必须为正")
	}

	alert := &model.SmartAlert{
		ID:          "backtest",
		Status:      model.StatusActive,
		Cooldown:    settings.Cooldown,
		MaxTriggers: settings.MaxTriggers,
	}
	st := model.NewEvaluationState(alert.ID)

	var signals []model.BacktestSignal
	for i := range series {
		if cerr := ctx.Err(); cerr != nil {
			return nil, fmt.Errorf("回测被取消: %w", cerr)
		}
		point := &series[i]
		dataFn := feed.MapDataFn(point.Readings, point.AsOf)
		outcome := r.evaluator.Evaluate(root, point.AsOf, dataFn, st)
		decision := r.lifecycle.Apply(alert, point.AsOf, outcome)
		if decision.Fired {
			signal := model.BacktestSignal{FiredAt: point.AsOf, BarIndex: i}
			if entry, ok := point.Readings[settings.PriceKey]; ok {
				signal.EntryPrice = entry
			}
			signals = append(signals, signal)
		}
		if decision.Expired {
			break
		}
	}

	labelSignals(signals, series, settings)
	report = buildReport(signals, settings)
	report.Bars = len(series)
	report.StartAt = series[0].AsOf
	report.EndAt = series[len(series)-1].AsOf
	return report, nil
}

// labelSignals 正向收益标注：持有 Horizon 根柱后的收益达到阈值记为成功。
// 持有期超出序列末尾或进出场价格缺失的信号不参与统计。
func labelSignals(signals []model.BacktestSignal, series []model.HistoricalPoint, settings model.BacktestSettings) {
	for i := range signals {
		sig := &signals[i]
		exitIdx := sig.BarIndex + settings.Horizon
		if sig.EntryPrice <= 0 || exitIdx >= len(series) {
			continue
		}
		exit, ok := series[exitIdx].Readings[settings.PriceKey]
		if !ok || exit <= 0 {
			continue
		}
		sig.ExitPrice = exit
		sig.Return = (exit - sig.EntryPrice) / sig.EntryPrice
		sig.Success = sig.Return >= settings.SuccessThreshold
		sig.Labeled = true
	}
}
