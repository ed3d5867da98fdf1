// pkg/engine/validator.go
package engine

import (
	"fmt"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// MaxTreeDepth 条件树嵌套深度上限
const MaxTreeDepth = 8

// Complexity 条件树复杂度分级，按叶子数划分
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"   // 叶子数 <= 3
	ComplexityModerate Complexity = "moderate" // <= 6
	ComplexityComplex  Complexity = "complex"  // <= 10
	ComplexityAdvanced Complexity = "advanced"
)

// ValidationResult 条件树校验结果
type ValidationResult struct {
	Valid      bool       `json:"valid"`
	Errors     []string   `json:"errors,omitempty"`
	LeafCount  int        `json:"leaf_count"`
	MaxDepth   int        `json:"max_depth"`
	Complexity Complexity `json:"complexity,omitempty"`
}

var validLogic = map[model.ConditionLogic]bool{
	model.LogicAnd:      true,
	model.LogicOr:       true,
	model.LogicNot:      true,
	model.LogicThen:     true,
	model.LogicSequence: true,
}

var validDataType = map[model.DataType]bool{
	model.DataPrice:     true,
	model.DataIndicator: true,
	model.DataVolume:    true,
	model.DataPattern:   true,
	model.DataWhale:     true,
	model.DataMLSignal:  true,
}

// operatorTypes 运算符允许作用的数据类别，nil 表示全部允许
var operatorTypes = map[model.ConditionOperator]map[model.DataType]bool{
	model.OpIsAbove: nil,
	model.OpIsBelow: nil,
	model.OpBetween: nil,
	model.OpEquals:  nil,
	model.OpCrossesAbove: {
		model.DataPrice: true, model.DataIndicator: true, model.DataVolume: true,
		model.DataWhale: true, model.DataMLSignal: true,
	},
	model.OpCrossesBelow: {
		model.DataPrice: true, model.DataIndicator: true, model.DataVolume: true,
		model.DataWhale: true, model.DataMLSignal: true,
	},
	model.OpNewHigh: {
		model.DataPrice: true, model.DataIndicator: true, model.DataVolume: true,
		model.DataWhale: true,
	},
	model.OpNewLow: {
		model.DataPrice: true, model.DataIndicator: true, model.DataVolume: true,
		model.DataWhale: true,
	},
	model.OpPatternMatch: {model.DataPattern: true},
	model.OpSignalAbove:  {model.DataMLSignal: true},
}

// targetOperators 允许使用指标引用作比较对象的运算符
var targetOperators = map[model.ConditionOperator]bool{
	model.OpCrossesAbove: true,
	model.OpCrossesBelow: true,
	model.OpIsAbove:      true,
	model.OpIsBelow:      true,
}

// ValidateTree 校验条件树结构。校验失败的树不得持久化、不得评估。
func ValidateTree(root *model.ConditionNode) *ValidationResult {
	result := &ValidationResult{}
	if root == nil || (!root.IsLeaf() && !root.IsGroup()) {
		result.Errors = append(result.Errors, "条件树为空")
		return result
	}

	validateNode(root, "r", 1, result)

	result.LeafCount = root.LeafCount()
	result.MaxDepth = root.MaxDepth()
	if result.LeafCount == 0 {
		result.Errors = append(result.Errors, "条件树不含任何叶子条件")
	}
	if result.MaxDepth > MaxTreeDepth {
		result.Errors = append(result.Errors, fmt.Sprintf("嵌套深度 %d 超过上限 %d", result.MaxDepth, MaxTreeDepth))
	}

	result.Valid = len(result.Errors) == 0
	if result.Valid {
		result.Complexity = classifyComplexity(result.LeafCount)
	}
	return result
}

func validateNode(node *model.ConditionNode, path string, depth int, result *ValidationResult) {
	if depth > MaxTreeDepth {
		// 深度超限统一在顶层报告
		return
	}
	if node.IsGroup() {
		validateGroup(node.Group, path, depth, result)
		return
	}
	if node.IsLeaf() {
		validateLeaf(node.Leaf, path, result)
		return
	}
	result.Errors = append(result.Errors, fmt.Sprintf("%s: 条件节点为空", path))
}

func validateGroup(group *model.ConditionGroup, path string, depth int, result *ValidationResult) {
	if !validLogic[group.Logic] {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: 未知组合逻辑 %q", path, group.Logic))
		return
	}
	n := len(group.Conditions)
	switch {
	case n == 0:
		result.Errors = append(result.Errors, fmt.Sprintf("%s: 条件组为空", path))
		return
	case group.Logic == model.LogicNot && n != 1:
		result.Errors = append(result.Errors, fmt.Sprintf("%s: NOT 必须恰好包含 1 个子条件，当前 %d 个", path, n))
	case (group.Logic == model.LogicThen || group.Logic == model.LogicSequence) && n < 2:
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s 至少需要 2 个子条件，当前 %d 个", path, group.Logic, n))
	}
	if group.Timeout < 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: 时间窗不能为负", path))
	}
	for i := range group.Conditions {
		validateNode(&group.Conditions[i], fmt.Sprintf("%s.%d", path, i), depth+1, result)
	}
}

func validateLeaf(leaf *model.Condition, path string, result *ValidationResult) {
	if !validDataType[leaf.Type] {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: 未知数据类别 %q", path, leaf.Type))
		return
	}
	allowed, known := operatorTypes[leaf.Operator]
	if !known {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: 未知运算符 %q", path, leaf.Operator))
		return
	}
	if allowed != nil && !allowed[leaf.Type] {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: 运算符 %s 不适用于 %s 类别", path, leaf.Operator, leaf.Type))
	}
	if leaf.Symbol == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: 标的不能为空", path))
	}
	if leaf.Type == model.DataIndicator && leaf.Indicator == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: indicator 类别必须指定指标名", path))
	}
	if leaf.Operator == model.OpBetween {
		if leaf.SecondValue == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: between 缺少区间上界", path))
		} else if *leaf.SecondValue <= leaf.Value {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: between 区间上界必须大于下界", path))
		}
	}
	if leaf.Target != nil {
		if !targetOperators[leaf.Operator] {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: 运算符 %s 不支持指标引用比较", path, leaf.Operator))
		}
		if leaf.Target.Indicator == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: 指标引用缺少指标名", path))
		}
	}
}

func classifyComplexity(leafCount int) Complexity {
	switch {
	case leafCount <= 3:
		return ComplexitySimple
	case leafCount <= 6:
		return ComplexityModerate
	case leafCount <= 10:
		return ComplexityComplex
	default:
		return ComplexityAdvanced
	}
}
