// pkg/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/database"
	"github.com/dewei/AlphaRadar/pkg/engine"
	"github.com/dewei/AlphaRadar/pkg/state"
)

// Config 各周期任务的 cron 表达式
type Config struct {
	ExpiryCron string // 过期扫描
	FlushCron  string // 状态落库
	ReloadCron string // 预警重载对账
}

// Scheduler 引擎侧周期任务调度器
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	alerts  *database.SmartAlertDB
	store   state.Store
	flushTo state.Store // nil 表示在线状态本身就在库里，无需快照
	scanner *engine.Scanner
	log     *zap.Logger
}

// New 创建调度器
func New(cfg Config, alerts *database.SmartAlertDB, store state.Store, flushTo state.Store, scanner *engine.Scanner, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		cfg:     cfg,
		alerts:  alerts,
		store:   store,
		flushTo: flushTo,
		scanner: scanner,
		log:     log,
	}
}

// Start 注册并启动全部周期任务
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ExpiryCron, s.sweepExpired); err != nil {
		return fmt.Errorf("注册过期扫描任务失败: %w", err)
	}
	if s.flushTo != nil {
		if _, err := s.cron.AddFunc(s.cfg.FlushCron, s.flushStates); err != nil {
			return fmt.Errorf("注册状态落库任务失败: %w", err)
		}
	}
	if _, err := s.cron.AddFunc(s.cfg.ReloadCron, s.reloadAlerts); err != nil {
		return fmt.Errorf("注册预警重载任务失败: %w", err)
	}
	s.cron.Start()
	s.log.Info("调度器已启动")
	return nil
}

// Stop 停止调度器并等待运行中的任务结束
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// sweepExpired 把已过有效期的预警批量置为 expired
func (s *Scheduler) sweepExpired() {
	n, err := s.alerts.ExpireOverdue(time.Now())
	if err != nil {
		s.log.Error("过期扫描失败", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("过期扫描完成", zap.Int64("expired", n))
	}
}

// flushStates 把在线状态快照写入持久存储，重启后可恢复推进进度
func (s *Scheduler) flushStates() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	states, err := s.store.All(ctx)
	if err != nil {
		s.log.Error("读取在线状态失败", zap.Error(err))
		return
	}
	flushed := 0
	for _, st := range states {
		if err := s.flushTo.Save(ctx, st); err != nil {
			s.log.Warn("状态落库失败", zap.String("alert_id", st.AlertID), zap.Error(err))
			continue
		}
		flushed++
	}
	s.log.Info("状态落库完成", zap.Int("flushed", flushed))
}

// reloadAlerts 从数据库重载全部在线预警并对账卸载多余的
func (s *Scheduler) reloadAlerts() {
	alerts, err := s.alerts.ListActive()
	if err != nil {
		s.log.Error("重载预警失败", zap.Error(err))
		return
	}
	keep := make(map[string]bool, len(alerts))
	for _, alert := range alerts {
		keep[alert.ID] = true
		s.scanner.Upsert(alert)
	}
	s.scanner.Retain(keep)
	s.log.Info("预警重载完成", zap.Int("count", len(alerts)))
}
