// pkg/model/condition.go
package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ConditionLogic 条件组合逻辑
type ConditionLogic string

const (
	LogicAnd      ConditionLogic = "AND"
	LogicOr       ConditionLogic = "OR"
	LogicNot      ConditionLogic = "NOT"
	LogicThen     ConditionLogic = "THEN"     // 有序串联，每步间隔受 Timeout 约束
	LogicSequence ConditionLogic = "SEQUENCE" // 有序串联，首尾总时长受 Timeout 约束
)

// DataType 行情数据类别
type DataType string

const (
	DataPrice     DataType = "price"
	DataIndicator DataType = "indicator"
	DataVolume    DataType = "volume"
	DataPattern   DataType = "pattern"
	DataWhale     DataType = "whale_activity"
	DataMLSignal  DataType = "ml_signal"
)

// ConditionOperator 叶子条件运算符
type ConditionOperator string

const (
	OpCrossesAbove ConditionOperator = "crosses_above" // 上穿：上一读数在阈值下方，当前在上方
	OpCrossesBelow ConditionOperator = "crosses_below" // 下穿
	OpIsAbove      ConditionOperator = "is_above"
	OpIsBelow      ConditionOperator = "is_below"
	OpBetween      ConditionOperator = "between"
	OpEquals       ConditionOperator = "equals"
	OpNewHigh      ConditionOperator = "new_high" // 创观测期新高
	OpNewLow       ConditionOperator = "new_low"
	OpPatternMatch ConditionOperator = "pattern_match" // 形态置信度达到阈值
	OpSignalAbove  ConditionOperator = "signal_above"  // 信号分数高于阈值
)

// IndicatorRef 指向另一路指标读数的引用，用作比较对象（替代固定阈值）
type IndicatorRef struct {
	Indicator string            `json:"indicator"`
	Params    map[string]string `json:"params,omitempty"`
}

// MetricKey 引用读数的规范键
func (r *IndicatorRef) MetricKey() string {
	return MetricKey(DataIndicator, r.Indicator, r.Params)
}

// Condition 叶子条件：对单一行情读数的原子判断。校验通过后不可变。
type Condition struct {
	ID        string            `json:"id,omitempty"`
	Type      DataType          `json:"type"`
	Symbol    string            `json:"symbol"`
	Indicator string            `json:"indicator,omitempty"` // type=indicator 时的指标名，如 rsi、macd
	Params    map[string]string `json:"params,omitempty"`    // 指标参数，如 period=14
	Operator  ConditionOperator `json:"operator"`
	Value     float64           `json:"value"`
	// SecondValue 为 between 的区间上界
	SecondValue *float64 `json:"second_value,omitempty"`
	// Target 不为空时，比较对象取该指标的当前读数而非 Value
	Target *IndicatorRef `json:"target,omitempty"`
}

// MetricKey 该叶子读取的行情读数规范键
func (c *Condition) MetricKey() string {
	return MetricKey(c.Type, c.Indicator, c.Params)
}

// ConditionGroup 条件组：按 Logic 组合的有序子节点
type ConditionGroup struct {
	Logic      ConditionLogic  `json:"logic"`
	Conditions []ConditionNode `json:"conditions"`
	Timeout    int             `json:"timeout,omitempty"` // 秒，仅 THEN/SEQUENCE 使用
}

// ConditionNode 条件树节点，叶子与条件组二选一。
// JSON 编码按字段区分：带 logic 的是条件组，带 type 的是叶子。
type ConditionNode struct {
	Leaf  *Condition
	Group *ConditionGroup
}

// IsLeaf 是否叶子节点
func (n *ConditionNode) IsLeaf() bool {
	return n.Leaf != nil
}

// IsGroup 是否条件组节点
func (n *ConditionNode) IsGroup() bool {
	return n.Group != nil
}

// MarshalJSON 输出叶子或条件组本体，不带包装层
func (n ConditionNode) MarshalJSON() ([]byte, error) {
	switch {
	case n.Group != nil:
		return json.Marshal(n.Group)
	case n.Leaf != nil:
		return json.Marshal(n.Leaf)
	default:
		return nil, fmt.Errorf("条件节点为空")
	}
}

// UnmarshalJSON 按 logic/type 字段识别节点种类
func (n *ConditionNode) UnmarshalJSON(data []byte) error {
	var probe struct {
		Logic *ConditionLogic `json:"logic"`
		Type  *DataType       `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("解析条件节点失败: %w", err)
	}
	switch {
	case probe.Logic != nil:
		group := &ConditionGroup{}
		if err := json.Unmarshal(data, group); err != nil {
			return fmt.Errorf("解析条件组失败: %w", err)
		}
		n.Group = group
		n.Leaf = nil
	case probe.Type != nil:
		leaf := &Condition{}
		if err := json.Unmarshal(data, leaf); err != nil {
			return fmt.Errorf("解析叶子条件失败: %w", err)
		}
		n.Leaf = leaf
		n.Group = nil
	default:
		return fmt.Errorf("条件节点缺少 logic 或 type 字段")
	}
	return nil
}

// Walk 深度优先遍历整棵树。path 为节点定位键：根为 r，子节点逐层追加下标，
// 如 r.0、r.1.2。定位键同时是评估状态的索引键。
func (n *ConditionNode) Walk(path string, fn func(path string, node *ConditionNode)) {
	if n == nil {
		return
	}
	fn(path, n)
	if n.Group != nil {
		for i := range n.Group.Conditions {
			n.Group.Conditions[i].Walk(fmt.Sprintf("%s.%d", path, i), fn)
		}
	}
}

// LeafCount 叶子条件总数
func (n *ConditionNode) LeafCount() int {
	count := 0
	n.Walk("r", func(_ string, node *ConditionNode) {
		if node.IsLeaf() {
			count++
		}
	})
	return count
}

// MaxDepth 树的最大嵌套深度，单个叶子为 1
func (n *ConditionNode) MaxDepth() int {
	if n == nil {
		return 0
	}
	if n.IsLeaf() {
		return 1
	}
	deepest := 0
	if n.Group != nil {
		for i := range n.Group.Conditions {
			if d := n.Group.Conditions[i].MaxDepth(); d > deepest {
				deepest = d
			}
		}
	}
	return deepest + 1
}

// Symbols 树中引用的全部标的，去重后按首次出现顺序返回
func (n *ConditionNode) Symbols() []string {
	seen := make(map[string]bool)
	var symbols []string
	n.Walk("r", func(_ string, node *ConditionNode) {
		if node.IsLeaf() && node.Leaf.Symbol != "" && !seen[node.Leaf.Symbol] {
			seen[node.Leaf.Symbol] = true
			symbols = append(symbols, node.Leaf.Symbol)
		}
	})
	return symbols
}

// MetricKey 返回读数的规范键。无子名称时直接用类别名（price、volume），
// 带子名称时附加名称与排序后的参数，如 indicator:rsi(period=14)。
func MetricKey(dt DataType, name string, params map[string]string) string {
	if name == "" {
		return string(dt)
	}
	if len(params) == 0 {
		return string(dt) + ":" + name
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return string(dt) + ":" + name + "(" + strings.Join(pairs, ",") + ")"
}
