// pkg/engine/evaluator.go
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/dewei/AlphaRadar/pkg/feed"
	"github.com/dewei/AlphaRadar/pkg/model"
)

// eqEpsilon equals 判定的相对容差基数
const eqEpsilon = 1e-9

// Outcome 一次整树评估的输出
type Outcome struct {
	Verdict model.Verdict
	Trace   *model.NodeTrace
}

// Evaluator 条件树评估器。评估器本身无状态，历史读数与串联进度全部
// 存放在 EvaluationState 里，在线扫描与回测共用同一套评估逻辑。
type Evaluator struct{}

// NewEvaluator 创建评估器
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate 在给定时刻评估整棵条件树，评估状态就地更新。
// 读数缺失产生 unknown 判定，不会中断整树评估。
func (ev *Evaluator) Evaluate(root *model.ConditionNode, now time.Time, dataFn feed.DataFn, state *model.EvaluationState) Outcome {
	verdict, trace := ev.evalNode(root, "r", now, dataFn, state)
	state.UpdatedAt = now
	return Outcome{Verdict: verdict, Trace: &trace}
}

func (ev *Evaluator) evalNode(node *model.ConditionNode, path string, now time.Time, dataFn feed.DataFn, state *model.EvaluationState) (model.Verdict, model.NodeTrace) {
	if node.IsLeaf() {
		return ev.evalLeaf(node.Leaf, path, now, dataFn, state)
	}
	group := node.Group
	switch group.Logic {
	case model.LogicAnd, model.LogicOr:
		return ev.evalBoolean(group, path, now, dataFn, state)
	case model.LogicNot:
		childVerdict, childTrace := ev.evalNode(&group.Conditions[0], path+".0", now, dataFn, state)
		verdict := childVerdict.Not()
		return verdict, model.NodeTrace{Path: path, Verdict: verdict, Children: []model.NodeTrace{childTrace}}
	case model.LogicThen, model.LogicSequence:
		return ev.evalSequence(group, path, now, dataFn, state)
	default:
		return model.VerdictUnknown, model.NodeTrace{Path: path, Verdict: model.VerdictUnknown, Detail: "未知组合逻辑"}
	}
}

// evalBoolean AND/OR 组合。所有子节点都会被评估，不做短路，
// 保证叶子历史读数每个 tick 都在更新，诊断树完整。
func (ev *Evaluator) evalBoolean(group *model.ConditionGroup, path string, now time.Time, dataFn feed.DataFn, state *model.EvaluationState) (model.Verdict, model.NodeTrace) {
	children := make([]model.NodeTrace, 0, len(group.Conditions))
	var verdict model.Verdict
	for i := range group.Conditions {
		childVerdict, childTrace := ev.evalNode(&group.Conditions[i], fmt.Sprintf("%s.%d", path, i), now, dataFn, state)
		children = append(children, childTrace)
		switch {
		case i == 0:
			verdict = childVerdict
		case group.Logic == model.LogicAnd:
			verdict = verdict.And(childVerdict)
		default:
			verdict = verdict.Or(childVerdict)
		}
	}
	return verdict, model.NodeTrace{Path: path, Verdict: verdict, Children: children}
}

// evalSequence THEN/SEQUENCE 有序串联。每个 tick 至多推进一步，
// 且推进时刻必须严格晚于上一步的满足时刻；整条链完成的那个 tick
// 判定为 true 并清零推进状态。THEN 约束相邻两步的间隔，SEQUENCE
// 额外约束首步到末步的总时长。窗口过期清零后本 tick 仍从第 0 步
// 重新尝试。
func (ev *Evaluator) evalSequence(group *model.ConditionGroup, path string, now time.Time, dataFn feed.DataFn, state *model.EvaluationState) (model.Verdict, model.NodeTrace) {
	n := len(group.Conditions)
	verdicts := make([]model.Verdict, n)
	children := make([]model.NodeTrace, n)
	for i := range group.Conditions {
		verdicts[i], children[i] = ev.evalNode(&group.Conditions[i], fmt.Sprintf("%s.%d", path, i), now, dataFn, state)
	}

	ss := state.Sequence(path)
	detail := ""

	// 推进前先判窗口过期
	if ss.NextStep > 0 && group.Timeout > 0 {
		window := time.Duration(group.Timeout) * time.Second
		expired := ss.StepAt != nil && now.Sub(*ss.StepAt) > window
		if group.Logic == model.LogicSequence && ss.FirstAt != nil && now.Sub(*ss.FirstAt) > window {
			expired = true
		}
		if expired {
			ss.NextStep = 0
			ss.StepAt = nil
			ss.FirstAt = nil
			detail = "时间窗过期，进度清零"
		}
	}

	expected := ss.NextStep
	verdict := model.VerdictFalse
	switch verdicts[expected] {
	case model.VerdictTrue:
		if ss.NextStep > 0 && ss.StepAt != nil && !now.After(*ss.StepAt) {
			detail = fmt.Sprintf("等待步骤 %d/%d", expected+1, n)
			break
		}
		if ss.NextStep == 0 {
			first := now
			ss.FirstAt = &first
		}
		stepAt := now
		ss.StepAt = &stepAt
		ss.NextStep++
		if ss.NextStep == n {
			verdict = model.VerdictTrue
			detail = "串联链完成"
			ss.NextStep = 0
			ss.StepAt = nil
			ss.FirstAt = nil
		} else {
			detail = fmt.Sprintf("推进到步骤 %d/%d", ss.NextStep+1, n)
		}
	case model.VerdictUnknown:
		verdict = model.VerdictUnknown
		if detail == "" {
			detail = fmt.Sprintf("步骤 %d/%d 读数缺失", expected+1, n)
		}
	default:
		if detail == "" {
			detail = fmt.Sprintf("等待步骤 %d/%d", expected+1, n)
		}
	}

	return verdict, model.NodeTrace{Path: path, Verdict: verdict, Detail: detail, Children: children}
}

func (ev *Evaluator) evalLeaf(leaf *model.Condition, path string, now time.Time, dataFn feed.DataFn, state *model.EvaluationState) (model.Verdict, model.NodeTrace) {
	trace := model.NodeTrace{Path: path}
	reading := dataFn(leaf.Type, leaf.Symbol, leaf.MetricKey(), now)
	if !reading.Available {
		// 读数缺失时不更新历史状态，穿越判定的前后读数必须成对
		trace.Verdict = model.VerdictUnknown
		trace.Detail = "读数缺失"
		return model.VerdictUnknown, trace
	}
	cur := reading.Value
	trace.Value = &cur

	// 比较对象：固定阈值或另一路指标的当前读数
	threshold := leaf.Value
	var targetVal *float64
	if leaf.Target != nil {
		tr := dataFn(model.DataIndicator, leaf.Symbol, leaf.Target.MetricKey(), now)
		if !tr.Available {
			trace.Verdict = model.VerdictUnknown
			trace.Detail = "比较指标读数缺失"
			return model.VerdictUnknown, trace
		}
		threshold = tr.Value
		v := tr.Value
		targetVal = &v
		trace.Target = targetVal
	}

	ls := state.Leaf(path)
	verdict := ev.applyOperator(leaf, ls, cur, threshold, targetVal, &trace)

	// 判定完成后再写入本次观测
	value := cur
	seenAt := now
	ls.LastValue = &value
	ls.LastSeenAt = &seenAt
	if targetVal != nil {
		t := *targetVal
		ls.LastTarget = &t
	}
	updateExtremes(leaf.Operator, ls, cur)

	trace.Verdict = verdict
	return verdict, trace
}

func (ev *Evaluator) applyOperator(leaf *model.Condition, ls *model.LeafState, cur, threshold float64, targetVal *float64, trace *model.NodeTrace) model.Verdict {
	switch leaf.Operator {
	case model.OpIsAbove:
		return model.VerdictOf(cur > threshold)
	case model.OpIsBelow:
		return model.VerdictOf(cur < threshold)
	case model.OpBetween:
		return model.VerdictOf(leaf.SecondValue != nil && cur >= leaf.Value && cur <= *leaf.SecondValue)
	case model.OpEquals:
		tol := eqEpsilon * math.Max(1, math.Abs(leaf.Value))
		return model.VerdictOf(math.Abs(cur-leaf.Value) <= tol)
	case model.OpCrossesAbove, model.OpCrossesBelow:
		return ev.applyCrossing(leaf.Operator, ls, cur, threshold, targetVal, trace)
	case model.OpNewHigh:
		if ls.MaxSeen == nil {
			trace.Detail = "首次观测，建立基线"
			return model.VerdictFalse
		}
		return model.VerdictOf(cur > *ls.MaxSeen)
	case model.OpNewLow:
		if ls.MinSeen == nil {
			trace.Detail = "首次观测，建立基线"
			return model.VerdictFalse
		}
		return model.VerdictOf(cur < *ls.MinSeen)
	case model.OpPatternMatch:
		return model.VerdictOf(cur >= leaf.Value)
	case model.OpSignalAbove:
		return model.VerdictOf(cur > leaf.Value)
	default:
		trace.Detail = "未知运算符"
		return model.VerdictUnknown
	}
}

// applyCrossing 穿越判定：上一读数在阈值一侧、当前读数在另一侧的
// 那个 tick 为 true。首次观测没有上一读数，不构成穿越。
func (ev *Evaluator) applyCrossing(op model.ConditionOperator, ls *model.LeafState, cur, threshold float64, targetVal *float64, trace *model.NodeTrace) model.Verdict {
	if ls.LastValue == nil || (targetVal != nil && ls.LastTarget == nil) {
		trace.Detail = "首次观测，建立基线"
		return model.VerdictFalse
	}
	prev := *ls.LastValue
	prevThreshold := threshold
	if targetVal != nil {
		prevThreshold = *ls.LastTarget
	}
	if op == model.OpCrossesAbove {
		return model.VerdictOf(prev <= prevThreshold && cur > threshold)
	}
	return model.VerdictOf(prev >= prevThreshold && cur < threshold)
}

func updateExtremes(op model.ConditionOperator, ls *model.LeafState, cur float64) {
	switch op {
	case model.OpNewHigh:
		if ls.MaxSeen == nil || cur > *ls.MaxSeen {
			v := cur
			ls.MaxSeen = &v
		}
	case model.OpNewLow:
		if ls.MinSeen == nil || cur < *ls.MinSeen {
			v := cur
			ls.MinSeen = &v
		}
	}
}
