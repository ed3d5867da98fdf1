// pkg/database/database.go
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dewei/AlphaRadar/pkg/config"
	"github.com/dewei/AlphaRadar/pkg/model"
)

// Database Postgres 连接与表迁移的统一入口
type Database struct {
	db *gorm.DB
}

// New 建立数据库连接并迁移表结构
func New(cfg *config.Config) (*Database, error) {
	pg := cfg.Database.Postgres

	// 构建连接字符串
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 设置连接池参数
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := db.AutoMigrate(
		&model.SmartAlert{},
		&model.EvaluationStateRecord{},
		&model.TriggerEvent{},
	); err != nil {
		return nil, fmt.Errorf("迁移表结构失败: %w", err)
	}

	return &Database{db: db}, nil
}

// Gorm 暴露底层句柄，状态存储等组件复用同一连接
func (d *Database) Gorm() *gorm.DB {
	return d.db
}

// Ping 测试数据库连接
func (d *Database) Ping() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Alert 预警表访问器
func (d *Database) Alert() *SmartAlertDB {
	return &SmartAlertDB{db: d.db}
}

// Event 触发事件表访问器
func (d *Database) Event() *TriggerEventDB {
	return &TriggerEventDB{db: d.db}
}
