package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/collector"
	"github.com/dewei/AlphaRadar/pkg/config"
	"github.com/dewei/AlphaRadar/pkg/engine"
	"github.com/dewei/AlphaRadar/pkg/feed"
	"github.com/dewei/AlphaRadar/pkg/messaging"
	"github.com/dewei/AlphaRadar/pkg/model"
	"github.com/dewei/AlphaRadar/pkg/state"
)

func main() {
	log.Println("开始系统验证...")

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/dev/app.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v\n", err)
	}

	// 测试条件树校验
	testValidator()

	// 测试评估扫描链路
	testScanner()

	// 测试行情采集
	testMarketClient(cfg)

	// 测试NATS（如果可用）
	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientName+"-verifier", zap.NewNop())
	if err != nil {
		log.Printf("连接NATS失败: %v，跳过NATS相关测试\n", err)
	} else {
		defer natsClient.Close()
		testNATS(natsClient)
	}

	log.Println("系统验证完成")
}

// crossingTree 验证用的最小上穿条件树
func crossingTree() *model.ConditionNode {
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
	return &root
}

// 测试条件树校验
func testValidator() {
	log.Println("测试条件树校验...")

	result := engine.ValidateTree(crossingTree())
	log.Printf("校验结果: valid=%v, 叶子数=%d, 深度=%d, 复杂度=%s\n",
		result.Valid, result.LeafCount, result.MaxDepth, result.Complexity)
	if !result.Valid {
		log.Fatalf("条件树不合法: %v\n", result.Errors)
	}
}

// 测试评估扫描链路：装载预警、推两个行情、等待触发事件
func testScanner() {
	log.Println("测试评估扫描链路...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := engine.NewScanner(engine.ScannerConfig{
		Workers:     2,
		QueueSize:   16,
		EventBuffer: 4,
	}, state.NewMemoryStore(), feed.NewTable(), zap.NewNop())
	scanner.Start(ctx)

	scanner.Upsert(&model.SmartAlert{
		ID:        "verify-alert",
		OwnerID:   "verify-user",
		Name:      "BTC 上穿 5 万",
		Symbol:    "BTC/USDT",
		Root:      crossingTree(),
		Status:    model.StatusActive,
		UpdatedAt: time.Now(),
	})

	now := time.Now()
	scanner.Dispatch(&model.MarketTick{
		Symbol:   "BTC/USDT",
		AsOf:     now,
		Readings: []model.TickReading{{Type: model.DataPrice, Value: 49000}},
		Source:   "verify",
	})
	scanner.Dispatch(&model.MarketTick{
		Symbol:   "BTC/USDT",
		AsOf:     now.Add(time.Second),
		Readings: []model.TickReading{{Type: model.DataPrice, Value: 50500}},
		Source:   "verify",
	})

	select {
	case event := <-scanner.Events():
		log.Printf("收到触发事件: 预警=%s, 标的=%s, 计数=%d\n",
			event.AlertID, event.Symbol, event.TriggerCount)
	case <-time.After(3 * time.Second):
		log.Println("未收到触发事件")
	}
}

// 测试行情采集
func testMarketClient(cfg *config.Config) {
	log.Println("测试行情采集...")

	if cfg.Collector.APIKey == "" {
		log.Println("未配置行情数据源密钥，跳过采集测试")
		return
	}

	symbols := cfg.Collector.Symbols
	if len(symbols) == 0 {
		symbols = []string{"BTC/USDT", "ETH/USDT"}
	}

	client := collector.NewMarketClient(
		cfg.Collector.APIKey,
		cfg.Collector.BaseURL,
		time.Duration(cfg.Collector.Timeout)*time.Second,
	)
	ticks, err := client.FetchSnapshot(context.Background(), symbols)
	if err != nil {
		log.Printf("行情采集失败: %v\n", err)
		return
	}

	log.Printf("成功获取%d条行情快照\n", len(ticks))
	for _, tick := range ticks {
		log.Printf("标的: %s, 读数路数: %d, 时刻: %s\n",
			tick.Symbol, len(tick.Readings), tick.AsOf.Format(time.RFC3339))
	}
}

// 测试NATS消息队列
func testNATS(client *messaging.NATSClient) {
	log.Println("测试NATS消息队列...")

	tick := model.MarketTick{
		Symbol:   "BTC/USDT",
		AsOf:     time.Now(),
		Readings: []model.TickReading{{Type: model.DataPrice, Value: 50500}},
		Source:   "verify",
	}

	// 发布行情
	if err := client.Publish(messaging.SubjectTick(tick.Symbol), tick); err != nil {
		log.Printf("发布行情失败: %v\n", err)
		return
	}
	log.Println("发布行情成功")

	// 订阅行情流，验证能收到
	received := make(chan model.MarketTick, 1)
	err := client.Subscribe(messaging.StreamTicks, "verify-ticks", "ticks.>", func(data []byte) error {
		var t model.MarketTick
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		select {
		case received <- t:
		default:
		}
		return nil
	})
	if err != nil {
		log.Printf("订阅行情流失败: %v\n", err)
		return
	}
	defer client.DeleteConsumer(messaging.StreamTicks, "verify-ticks")

	// 再发布一条行情并等待接收
	tick.AsOf = time.Now()
	client.Publish(messaging.SubjectTick(tick.Symbol), tick)

	select {
	case t := <-received:
		log.Printf("成功接收到行情: %s, 读数路数: %d\n", t.Symbol, len(t.Readings))
	case <-time.After(3 * time.Second):
		log.Println("未接收到行情数据")
	}
}
