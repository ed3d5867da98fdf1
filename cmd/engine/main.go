package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/config"
	"github.com/dewei/AlphaRadar/pkg/database"
	"github.com/dewei/AlphaRadar/pkg/engine"
	"github.com/dewei/AlphaRadar/pkg/feed"
	"github.com/dewei/AlphaRadar/pkg/logger"
	"github.com/dewei/AlphaRadar/pkg/messaging"
	"github.com/dewei/AlphaRadar/pkg/model"
	"github.com/dewei/AlphaRadar/pkg/monitor"
	"github.com/dewei/AlphaRadar/pkg/scheduler"
	"github.com/dewei/AlphaRadar/pkg/state"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("启动预警评估引擎", zap.String("env", cfg.App.Env))

	// 连接数据库
	db, err := database.New(cfg)
	if err != nil {
		log.Fatal("连接数据库失败", zap.Error(err))
	}
	defer db.Close()

	// 状态后端
	var rdb *redis.Client
	if cfg.Engine.StateBackend == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}
	store, err := state.New(cfg.Engine.StateBackend, db.Gorm(), rdb)
	if err != nil {
		log.Fatal("创建状态后端失败", zap.Error(err))
	}

	// 在线状态不在库里时，定期把快照写回Postgres
	var flushTo state.Store
	if cfg.Engine.StateBackend != "postgres" {
		flushTo, err = state.New("postgres", db.Gorm(), nil)
		if err != nil {
			log.Fatal("创建落库后端失败", zap.Error(err))
		}
	}

	// 连接NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientName+"-engine", log)
	if err != nil {
		log.Fatal("连接NATS失败", zap.Error(err))
	}
	defer natsClient.Close()

	// 行情快照表与评估扫描器
	table := feed.NewTable()
	scanner := engine.NewScanner(engine.ScannerConfig{
		Workers:     cfg.Engine.Workers,
		QueueSize:   cfg.Engine.QueueSize,
		EventBuffer: cfg.Engine.EventBuffer,
	}, store, table, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner.Start(ctx)

	// 启动装载全部活跃预警
	alerts, err := db.Alert().ListActive()
	if err != nil {
		log.Fatal("装载预警失败", zap.Error(err))
	}
	for _, alert := range alerts {
		scanner.Upsert(alert)
	}
	log.Info("预警装载完成", zap.Int("count", len(alerts)))

	// 触发事件处理
	go processEvents(scanner, db, natsClient, log)

	// 订阅行情流
	err = natsClient.Subscribe(messaging.StreamTicks, "engine-ticks", "ticks.>", func(data []byte) error {
		var tick model.MarketTick
		if err := json.Unmarshal(data, &tick); err != nil {
			return fmt.Errorf("解析行情推送失败: %w", err)
		}
		scanner.Dispatch(&tick)
		return nil
	})
	if err != nil {
		log.Fatal("订阅行情流失败", zap.Error(err))
	}

	// 订阅控制流
	err = natsClient.Subscribe(messaging.StreamControl, "engine-control", messaging.SubjectControl, func(data []byte) error {
		var msg model.ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("解析控制消息失败: %w", err)
		}
		handleControl(scanner, db, &msg, log)
		return nil
	})
	if err != nil {
		log.Fatal("订阅控制流失败", zap.Error(err))
	}

	// 周期任务
	sched := scheduler.New(scheduler.Config{
		ExpiryCron: cfg.Engine.ExpiryCron,
		FlushCron:  cfg.Engine.FlushCron,
		ReloadCron: cfg.Engine.ReloadCron,
	}, db.Alert(), store, flushTo, scanner, log)
	if err := sched.Start(); err != nil {
		log.Fatal("启动调度器失败", zap.Error(err))
	}
	defer sched.Stop()

	// 运维端口
	health := monitor.NewHealth()
	health.Register("database", db.Ping)
	health.Register("nats", func() error {
		if !natsClient.IsConnected() {
			return fmt.Errorf("NATS连接断开")
		}
		return nil
	})
	go serveOps(cfg.Engine.OpsPort, health, log)

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在关闭预警评估引擎...")
	cancel()
	time.Sleep(1 * time.Second) // 等待分片收尾
}

// processEvents 消费触发事件：落库、回写计数、发布到触发流。
// 任何一步失败都不回滚已发生的触发。
func processEvents(scanner *engine.Scanner, db *database.Database, natsClient *messaging.NATSClient, log *zap.Logger) {
	for event := range scanner.Events() {
		if err := db.Event().Create(event); err != nil {
			log.Error("保存触发事件失败", zap.String("alert_id", event.AlertID), zap.Error(err))
		}
		if err := db.Alert().RecordFire(event.AlertID, event.FiredAt, event.TriggerCount); err != nil {
			log.Error("回写触发计数失败", zap.String("alert_id", event.AlertID), zap.Error(err))
		}
		if err := natsClient.Publish(messaging.SubjectTrigger(event.AlertID), event); err != nil {
			log.Error("发布触发事件失败", zap.String("alert_id", event.AlertID), zap.Error(err))
		}

		log.Info("预警触发",
			zap.String("alert_id", event.AlertID),
			zap.String("symbol", event.Symbol),
			zap.Int("trigger_count", event.TriggerCount))
	}
}

// handleControl 处理控制面消息，引擎装载集合与库中保持一致
func handleControl(scanner *engine.Scanner, db *database.Database, msg *model.ControlMessage, log *zap.Logger) {
	switch msg.Op {
	case model.ControlUpsert, model.ControlResume:
		alert, err := db.Alert().GetByID(msg.AlertID)
		if err != nil {
			log.Warn("控制消息指向的预警不存在",
				zap.String("alert_id", msg.AlertID),
				zap.Error(err))
			return
		}
		if alert.Status == model.StatusActive {
			scanner.Upsert(alert)
		} else {
			scanner.Remove(alert.ID)
		}
	case model.ControlPause, model.ControlDelete:
		scanner.Remove(msg.AlertID)
	default:
		log.Warn("未知控制操作", zap.String("op", string(msg.Op)))
	}
}

// serveOps 暴露 /metrics 和 /health
func serveOps(port string, health *monitor.Health, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", health.Handler())

	log.Info("运维端口就绪", zap.String("addr", ":"+port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Error("运维端口退出", zap.Error(err))
	}
}
