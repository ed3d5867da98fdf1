package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/collector"
	"github.com/dewei/AlphaRadar/pkg/config"
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

	log.Info("启动行情采集服务", zap.String("env", cfg.App.Env))

	if len(cfg.Collector.Symbols) == 0 {
		log.Fatal("未配置采集标的")
	}

	// 连接NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientName+"-collector", log)
	if err != nil {
		log.Fatal("连接NATS失败", zap.Error(err))
	}
	defer natsClient.Close()

	// 行情客户端与轮询器
	client := collector.NewMarketClient(
		cfg.Collector.APIKey,
		cfg.Collector.BaseURL,
		time.Duration(cfg.Collector.Timeout)*time.Second,
	)
	poller := collector.NewPoller(
		client,
		natsClient,
		cfg.Collector.Symbols,
		time.Duration(cfg.Collector.Interval)*time.Second,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Run(ctx)

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在关闭行情采集服务...")
	cancel()
	time.Sleep(1 * time.Second) // 等待采集任务收尾
}
