package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/api"
	"github.com/dewei/AlphaRadar/pkg/config"
	"github.com/dewei/AlphaRadar/pkg/database"
	"github.com/dewei/AlphaRadar/pkg/logger"
	"github.com/dewei/AlphaRadar/pkg/messaging"
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

	log.Info("启动预警API服务", zap.String("env", cfg.App.Env))

	// 连接数据库
	db, err := database.New(cfg)
	if err != nil {
		log.Fatal("连接数据库失败", zap.Error(err))
	}
	defer db.Close()

	// 连接NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientName+"-api", log)
	if err != nil {
		log.Fatal("连接NATS失败", zap.Error(err))
	}
	defer natsClient.Close()

	// 创建API处理程序
	handlers := api.NewHandlers(
		db.Alert(),
		db.Event(),
		natsClient,
		api.BacktestDefaults{
			MaxBars:   cfg.Backtest.MaxBars,
			Horizon:   cfg.Backtest.DefaultHorizon,
			Threshold: cfg.Backtest.DefaultThreshold,
		},
		log,
	)

	// 创建并启动服务器
	server := api.NewServer(
		cfg.API.Port,
		time.Duration(cfg.API.ReadTimeout)*time.Second,
		time.Duration(cfg.API.WriteTimeout)*time.Second,
		log,
	)
	server.SetupRoutes(handlers)
	server.Start()
}
