package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dewei/AlphaRadar/pkg/engine"
	"github.com/dewei/AlphaRadar/pkg/feed"
	"github.com/dewei/AlphaRadar/pkg/model"
)

func main() {
	log.Println("开始简单验证...")

	// 构造一棵最小的上穿条件树
	treeJSON := []byte(`{
		"logic": "AND",
		"conditions": [
			{"type": "price", "symbol": "BTC/USDT", "operator": "crosses_above", "value": 50000}
		]
	}`)

	var root model.ConditionNode
	if err := json.Unmarshal(treeJSON, &root); err != nil {
		log.Fatalf("解析条件树失败: %v\n", err)
	}

	// 校验条件树
	result := engine.ValidateTree(&root)
	fmt.Printf("校验结果: valid=%v, 叶子数=%d, 深度=%d, 复杂度=%s\n",
		result.Valid, result.LeafCount, result.MaxDepth, result.Complexity)
	if !result.Valid {
		log.Fatalf("条件树不合法: %v\n", result.Errors)
	}

	// 两次评估：第一次建立基线，第二次上穿
	evaluator := engine.NewEvaluator()
	state := model.NewEvaluationState("verify-alert")
	t0 := time.Now()

	first := evaluator.Evaluate(&root, t0, feed.MapDataFn(map[string]float64{
		"BTC/USDT|price": 49000,
	}, t0), state)
	fmt.Printf("首次评估(49000): %s\n", first.Verdict)

	t1 := t0.Add(time.Second)
	second := evaluator.Evaluate(&root, t1, feed.MapDataFn(map[string]float64{
		"BTC/USDT|price": 50500,
	}, t1), state)
	fmt.Printf("再次评估(50500): %s\n", second.Verdict)

	// 生命周期裁决
	alert := &model.SmartAlert{
		ID:      "verify-alert",
		OwnerID: "verify-user",
		Name:    "BTC 上穿 5 万",
		Symbol:  "BTC/USDT",
		Root:    &root,
		Status:  model.StatusActive,
	}
	decision := engine.NewLifecycle().Apply(alert, t1, second)
	fmt.Printf("裁决: fired=%v, 触发计数=%d\n", decision.Fired, alert.TriggerCount)
	if decision.Event != nil {
		fmt.Printf("触发事件: %+v\n", *decision.Event)
	}

	log.Println("验证完成")
}
