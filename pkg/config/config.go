package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Database struct {
		Postgres struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			DBName   string `yaml:"dbname"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	NATS struct {
		URL        string `yaml:"url"`
		ClientName string `yaml:"client_name"`
	} `yaml:"nats"`

	API struct {
		Port         string `yaml:"port"`
		ReadTimeout  int    `yaml:"read_timeout"`  // 秒
		WriteTimeout int    `yaml:"write_timeout"` // 秒
	} `yaml:"api"`

	Engine struct {
		Workers      int    `yaml:"workers"`       // 评估分片数，0 取 CPU 数
		QueueSize    int    `yaml:"queue_size"`    // 每个分片的消息队列长度
		EventBuffer  int    `yaml:"event_buffer"`  // 触发事件缓冲长度
		OpsPort      string `yaml:"ops_port"`      // /metrics 与 /health 端口
		StateBackend string `yaml:"state_backend"` // memory / redis / postgres
		ExpiryCron   string `yaml:"expiry_cron"`   // 过期扫描周期
		FlushCron    string `yaml:"flush_cron"`    // 状态落库周期
		ReloadCron   string `yaml:"reload_cron"`   // 预警重载周期
	} `yaml:"engine"`

	Collector struct {
		BaseURL  string   `yaml:"base_url"`
		APIKey   string   `yaml:"api_key"`
		Interval int      `yaml:"interval"` // 秒
		Timeout  int      `yaml:"timeout"`  // 秒
		Symbols  []string `yaml:"symbols"`
	} `yaml:"collector"`

	Backtest struct {
		MaxBars          int     `yaml:"max_bars"`          // 单次回测的序列长度上限
		DefaultHorizon   int     `yaml:"default_horizon"`   // 默认持有期柱数
		DefaultThreshold float64 `yaml:"default_threshold"` // 默认成功收益阈值
	} `yaml:"backtest"`
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 环境变量覆盖
	overrideFromEnv(&config)

	applyDefaults(&config)

	return &config, nil
}

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) {
	// 应用名称
	if env := os.Getenv("APP_NAME"); env != "" {
		config.App.Name = env
	}

	// 环境
	if env := os.Getenv("APP_ENV"); env != "" {
		config.App.Env = env
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		config.App.LogLevel = env
	}

	// 数据库配置
	if env := os.Getenv("DB_HOST"); env != "" {
		config.Database.Postgres.Host = env
	}
	if env := os.Getenv("DB_PORT"); env != "" {
		var port int
		fmt.Sscanf(env, "%d", &port)
		if port > 0 {
			config.Database.Postgres.Port = port
		}
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.Database.Postgres.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Database.Postgres.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Database.Postgres.DBName = env
	}

	// Redis配置
	if env := os.Getenv("REDIS_ADDR"); env != "" {
		config.Redis.Addr = env
	}
	if env := os.Getenv("REDIS_PASSWORD"); env != "" {
		config.Redis.Password = env
	}

	// NATS配置
	if env := os.Getenv("NATS_URL"); env != "" {
		config.NATS.URL = env
	}
	if env := os.Getenv("NATS_CLIENT_NAME"); env != "" {
		config.NATS.ClientName = env
	}

	// API配置
	if env := os.Getenv("API_PORT"); env != "" {
		config.API.Port = env
	}

	// 引擎配置
	if env := os.Getenv("ENGINE_STATE_BACKEND"); env != "" {
		config.Engine.StateBackend = env
	}
	if env := os.Getenv("ENGINE_OPS_PORT"); env != "" {
		config.Engine.OpsPort = env
	}

	// 采集配置
	if env := os.Getenv("COLLECTOR_BASE_URL"); env != "" {
		config.Collector.BaseURL = env
	}
	if env := os.Getenv("COLLECTOR_API_KEY"); env != "" {
		config.Collector.APIKey = env
	}
	if env := os.Getenv("COLLECTOR_SYMBOLS"); env != "" {
		config.Collector.Symbols = strings.Split(env, ",")
	}
}

// applyDefaults 填充未配置项的默认值
func applyDefaults(config *Config) {
	if config.App.LogLevel == "" {
		config.App.LogLevel = "info"
	}
	if config.NATS.URL == "" {
		config.NATS.URL = "nats://localhost:4222"
	}
	if config.NATS.ClientName == "" {
		config.NATS.ClientName = "alpharadar"
	}
	if config.API.Port == "" {
		config.API.Port = "8080"
	}
	if config.API.ReadTimeout <= 0 {
		config.API.ReadTimeout = 15
	}
	if config.API.WriteTimeout <= 0 {
		config.API.WriteTimeout = 15
	}
	if config.Engine.QueueSize <= 0 {
		config.Engine.QueueSize = 1024
	}
	if config.Engine.EventBuffer <= 0 {
		config.Engine.EventBuffer = 256
	}
	if config.Engine.OpsPort == "" {
		config.Engine.OpsPort = "9091"
	}
	if config.Engine.StateBackend == "" {
		config.Engine.StateBackend = "memory"
	}
	if config.Engine.ExpiryCron == "" {
		config.Engine.ExpiryCron = "@every 1m"
	}
	if config.Engine.FlushCron == "" {
		config.Engine.FlushCron = "@every 5m"
	}
	if config.Engine.ReloadCron == "" {
		config.Engine.ReloadCron = "@hourly"
	}
	if config.Collector.Interval <= 0 {
		config.Collector.Interval = 5
	}
	if config.Collector.Timeout <= 0 {
		config.Collector.Timeout = 10
	}
	if config.Backtest.MaxBars <= 0 {
		config.Backtest.MaxBars = 50000
	}
	if config.Backtest.DefaultHorizon <= 0 {
		config.Backtest.DefaultHorizon = 12
	}
	if config.Backtest.DefaultThreshold == 0 {
		config.Backtest.DefaultThreshold = 0.01
	}
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}
