package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleYAML = `
app:
  name: alpharadar
  env: test
database:
  postgres:
    host: db.internal
    port: 5432
    user: radar
    password: secret
    dbname: alpharadar
    sslmode: disable
nats:
  url: nats://nats.internal:4222
api:
  port: "8088"
engine:
  workers: 4
  state_backend: redis
collector:
  base_url: http://feed.internal:9200
  api_key: key123
  symbols:
    - BTC/USDT
    - ETH/USDT
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.App.Name != "alpharadar" || cfg.App.Env != "test" {
		t.Errorf("app = %+v, want alpharadar/test", cfg.App)
	}
	if cfg.Database.Postgres.Host != "db.internal" || cfg.Database.Postgres.Port != 5432 {
		t.Errorf("postgres = %+v, want db.internal:5432", cfg.Database.Postgres)
	}
	if cfg.API.Port != "8088" {
		t.Errorf("api port = %s, want 8088", cfg.API.Port)
	}
	if cfg.Engine.Workers != 4 || cfg.Engine.StateBackend != "redis" {
		t.Errorf("engine = %+v, want 4 workers redis backend", cfg.Engine)
	}
	if want := []string{"BTC/USDT", "ETH/USDT"}; !reflect.DeepEqual(cfg.Collector.Symbols, want) {
		t.Errorf("symbols = %v, want %v", cfg.Collector.Symbols, want)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "app:\n  name: alpharadar\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.App.LogLevel != "info" {
		t.Errorf("log_level = %s, want info", cfg.App.LogLevel)
	}
	if cfg.API.Port != "8080" || cfg.API.ReadTimeout != 15 {
		t.Errorf("api = %+v, want 8080 with 15s timeouts", cfg.API)
	}
	if cfg.Engine.StateBackend != "memory" {
		t.Errorf("state_backend = %s, want memory", cfg.Engine.StateBackend)
	}
	if cfg.Engine.QueueSize != 1024 || cfg.Engine.EventBuffer != 256 {
		t.Errorf("engine queues = %d/%d, want 1024/256", cfg.Engine.QueueSize, cfg.Engine.EventBuffer)
	}
	if cfg.Engine.ExpiryCron != "@every 1m" || cfg.Engine.ReloadCron != "@hourly" {
		t.Errorf("crons = %s/%s, want @every 1m and @hourly", cfg.Engine.ExpiryCron, cfg.Engine.ReloadCron)
	}
	if cfg.Backtest.MaxBars != 50000 || cfg.Backtest.DefaultHorizon != 12 || cfg.Backtest.DefaultThreshold != 0.01 {
		t.Errorf("backtest = %+v, want 50000/12/0.01", cfg.Backtest)
	}
	if cfg.Collector.Interval != 5 || cfg.Collector.Timeout != 10 {
		t.Errorf("collector = %+v, want 5s interval 10s timeout", cfg.Collector)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "override.internal")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("NATS_URL", "nats://override:4222")
	t.Setenv("ENGINE_STATE_BACKEND", "postgres")
	t.Setenv("COLLECTOR_SYMBOLS", "SOL/USDT,DOGE/USDT")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.Postgres.Host != "override.internal" || cfg.Database.Postgres.Port != 15432 {
		t.Errorf("postgres = %+v, want override.internal:15432", cfg.Database.Postgres)
	}
	if cfg.NATS.URL != "nats://override:4222" {
		t.Errorf("nats url = %s, want override", cfg.NATS.URL)
	}
	if cfg.Engine.StateBackend != "postgres" {
		t.Errorf("state_backend = %s, want postgres", cfg.Engine.StateBackend)
	}
	if want := []string{"SOL/USDT", "DOGE/USDT"}; !reflect.DeepEqual(cfg.Collector.Symbols, want) {
		t.Errorf("symbols = %v, want %v", cfg.Collector.Symbols, want)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig(missing file) error = nil, want error")
	}
	if _, err := LoadConfig(writeConfig(t, "app: [broken")); err == nil {
		t.Error("LoadConfig(bad yaml) error = nil, want error")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := GetDefaultConfigPath(); got != "configs/dev/app.yaml" {
		t.Errorf("GetDefaultConfigPath() = %s, want configs/dev/app.yaml", got)
	}
	t.Setenv("APP_ENV", "prod")
	if got := GetDefaultConfigPath(); got != "configs/prod/app.yaml" {
		t.Errorf("GetDefaultConfigPath() = %s, want configs/prod/app.yaml", got)
	}
}
