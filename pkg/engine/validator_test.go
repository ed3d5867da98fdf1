package engine

import (
	"strings"
	"testing"

	"github.com/dewei/AlphaRadar/pkg/model"
)

func validLeaf() model.ConditionNode {
	return model.ConditionNode{Leaf: &model.Condition{
		Type:     model.DataPrice,
		Symbol:   "BTC/USDT",
		Operator: model.OpIsAbove,
		Value:    50000,
	}}
}

func TestValidateTreeAcceptsNestedTree(t *testing.T) {
	upper := 70.0
	root := &model.ConditionNode{Group: &model.ConditionGroup{
		Logic: model.LogicAnd,
		Conditions: []model.ConditionNode{
			{Leaf: &model.Condition{
				Type: model.DataPrice, Symbol: "BTC/USDT",
				Operator: model.OpCrossesAbove, Value: 50000,
			}},
			{Group: &model.ConditionGroup{
				Logic: model.LogicOr,
				Conditions: []model.ConditionNode{
					{Leaf: &model.Condition{
						Type: model.DataIndicator, Symbol: "BTC/USDT", Indicator: "rsi",
						Params:   map[string]string{"period": "14"},
						Operator: model.OpBetween, Value: 30, SecondValue: &upper,
					}},
					{Leaf: &model.Condition{
						Type: model.DataMLSignal, Symbol: "ETH/USDT",
						Operator: model.OpSignalAbove, Value: 0.7,
					}},
				},
			}},
		},
	}}

	result := ValidateTree(root)
	if !result.Valid {
		t.Fatalf("ValidateTree() errors = %v, want valid", result.Errors)
	}
	if result.LeafCount != 3 || result.MaxDepth != 3 {
		t.Errorf("leaf_count=%d max_depth=%d, want 3 and 3", result.LeafCount, result.MaxDepth)
	}
	if result.Complexity != ComplexitySimple {
		t.Errorf("complexity = %s, want simple", result.Complexity)
	}
}

func TestValidateTreeRejections(t *testing.T) {
	upper := 20.0
	tests := []struct {
		name    string
		root    *model.ConditionNode
		wantErr string
	}{
		{
			name:    "nil root",
			root:    nil,
			wantErr: "条件树为空",
		},
		{
			name:    "empty node",
			root:    &model.ConditionNode{},
			wantErr: "条件树为空",
		},
		{
			name: "empty group",
			root: &model.ConditionNode{Group: &model.ConditionGroup{
				Logic: model.LogicAnd, Conditions: []model.ConditionNode{},
			}},
			wantErr: "条件组为空",
		},
		{
			name: "unknown logic",
			root: &model.ConditionNode{Group: &model.ConditionGroup{
				Logic: "XOR", Conditions: []model.ConditionNode{validLeaf()},
			}},
			wantErr: "未知组合逻辑",
		},
		{
			name: "not with two children",
			root: &model.ConditionNode{Group: &model.ConditionGroup{
				Logic: model.LogicNot, Conditions: []model.ConditionNode{validLeaf(), validLeaf()},
			}},
			wantErr: "NOT 必须恰好包含 1 个子条件",
		},
		{
			name: "then with one child",
			root: &model.ConditionNode{Group: &model.ConditionGroup{
				Logic: model.LogicThen, Conditions: []model.ConditionNode{validLeaf()},
			}},
			wantErr: "至少需要 2 个子条件",
		},
		{
			name: "negative timeout",
			root: &model.ConditionNode{Group: &model.ConditionGroup{
				Logic: model.LogicThen, Timeout: -1,
				Conditions: []model.ConditionNode{validLeaf(), validLeaf()},
			}},
			wantErr: "时间窗不能为负",
		},
		{
			name: "unknown data type",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: "orderbook", Symbol: "BTC/USDT", Operator: model.OpIsAbove,
			}},
			wantErr: "未知数据类别",
		},
		{
			name: "unknown operator",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: model.DataPrice, Symbol: "BTC/USDT", Operator: "almost_equals",
			}},
			wantErr: "未知运算符",
		},
		{
			name: "operator type mismatch",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: model.DataPrice, Symbol: "BTC/USDT", Operator: model.OpPatternMatch, Value: 0.8,
			}},
			wantErr: "不适用于",
		},
		{
			name: "missing symbol",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: model.DataPrice, Operator: model.OpIsAbove, Value: 1,
			}},
			wantErr: "标的不能为空",
		},
		{
			name: "indicator without name",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: model.DataIndicator, Symbol: "BTC/USDT", Operator: model.OpIsAbove, Value: 70,
			}},
			wantErr: "必须指定指标名",
		},
		{
			name: "between without upper bound",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: model.DataPrice, Symbol: "BTC/USDT", Operator: model.OpBetween, Value: 30,
			}},
			wantErr: "缺少区间上界",
		},
		{
			name: "between with inverted bounds",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: model.DataPrice, Symbol: "BTC/USDT", Operator: model.OpBetween,
				Value: 30, SecondValue: &upper,
			}},
			wantErr: "区间上界必须大于下界",
		},
		{
			name: "target on unsupported operator",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: model.DataPrice, Symbol: "BTC/USDT", Operator: model.OpNewHigh,
				Target: &model.IndicatorRef{Indicator: "sma"},
			}},
			wantErr: "不支持指标引用比较",
		},
		{
			name: "target without indicator name",
			root: &model.ConditionNode{Leaf: &model.Condition{
				Type: model.DataPrice, Symbol: "BTC/USDT", Operator: model.OpCrossesAbove,
				Target: &model.IndicatorRef{},
			}},
			wantErr: "指标引用缺少指标名",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateTree(tt.root)
			if result.Valid {
				t.Fatal("ValidateTree() valid = true, want invalid")
			}
			found := false
			for _, msg := range result.Errors {
				if strings.Contains(msg, tt.wantErr) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("errors = %v, want containing %q", result.Errors, tt.wantErr)
			}
		})
	}
}

func TestValidateTreeDepthLimit(t *testing.T) {
	// 9 层嵌套超过深度上限 8
	node := validLeaf()
	for i := 0; i < 8; i++ {
		node = model.ConditionNode{Group: &model.ConditionGroup{
			Logic:      model.LogicAnd,
			Conditions: []model.ConditionNode{node},
		}}
	}

	result := ValidateTree(&node)
	if result.Valid {
		t.Fatal("ValidateTree() valid = true, want depth error")
	}
	if result.MaxDepth != 9 {
		t.Errorf("max_depth = %d, want 9", result.MaxDepth)
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "嵌套深度") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want depth error", result.Errors)
	}
}

func TestValidateTreeErrorPathsAddressable(t *testing.T) {
	// 错误信息携带节点定位键，前端能定位到具体节点
	root := &model.ConditionNode{Group: &model.ConditionGroup{
		Logic: model.LogicAnd,
		Conditions: []model.ConditionNode{
			validLeaf(),
			{Leaf: &model.Condition{Type: model.DataPrice, Operator: model.OpIsAbove}},
		},
	}}
	result := ValidateTree(root)
	if result.Valid {
		t.Fatal("ValidateTree() valid = true, want invalid")
	}
	found := false
	for _, msg := range result.Errors {
		if strings.HasPrefix(msg, "r.1:") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want message prefixed with r.1:", result.Errors)
	}
}

func TestComplexityClassification(t *testing.T) {
	build := func(leaves int) *model.ConditionNode {
		conds := make([]model.ConditionNode, 0, leaves)
		for i := 0; i < leaves; i++ {
			conds = append(conds, validLeaf())
		}
		return &model.ConditionNode{Group: &model.ConditionGroup{
			Logic: model.LogicOr, Conditions: conds,
		}}
	}

	tests := []struct {
		leaves int
		want   Complexity
	}{
		{1, ComplexitySimple},
		{3, ComplexitySimple},
		{4, ComplexityModerate},
		{6, ComplexityModerate},
		{7, ComplexityComplex},
		{10, ComplexityComplex},
		{11, ComplexityAdvanced},
	}
	for _, tt := range tests {
		result := ValidateTree(build(tt.leaves))
		if !result.Valid {
			t.Fatalf("ValidateTree(%d leaves) errors = %v", tt.leaves, result.Errors)
		}
		if result.Complexity != tt.want {
			t.Errorf("%d leaves complexity = %s, want %s", tt.leaves, result.Complexity, tt.want)
		}
	}
}
