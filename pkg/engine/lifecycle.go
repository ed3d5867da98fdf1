// pkg/engine/lifecycle.go
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// Decision 一次生命周期裁决
type Decision struct {
	Fired        bool                `json:"fired"`
	Suppressed   bool                `json:"suppressed"` // 条件成立但处于冷却期
	Expired      bool                `json:"expired"`    // 本次裁决进入终态
	ConditionMet bool                `json:"condition_met"`
	Event        *model.TriggerEvent `json:"event,omitempty"` // Fired 时非空
}

// Lifecycle 预警生命周期状态机。Apply 只修改内存中的预警字段，
// 持久化与事件投递由调用方完成；投递失败不回滚计数与冷却时间。
type Lifecycle struct{}

// NewLifecycle 创建生命周期管理器
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Apply 根据评估结果推进预警状态机。
// 冷却期内条件成立只做压制标记，不计数、不产生事件；
// 触发后次数达到上限的预警进入 expired 终态。
func (l *Lifecycle) Apply(alert *model.SmartAlert, now time.Time, outcome Outcome) Decision {
	if alert.Status != model.StatusActive {
		return Decision{}
	}

	if alert.PastExpiry(now) {
		alert.Status = model.StatusExpired
		return Decision{Expired: true}
	}

	if outcome.Verdict != model.VerdictTrue {
		return Decision{}
	}

	if alert.InCooldown(now) {
		return Decision{ConditionMet: true, Suppressed: true}
	}

	// 触发：triggered 是瞬态，事件流里可见，落库状态立即回到 active
	alert.TriggerCount++
	firedAt := now
	alert.LastTriggeredAt = &firedAt
	alert.Status = model.StatusTriggered

	event := &model.TriggerEvent{
		ID:           uuid.New().String(),
		AlertID:      alert.ID,
		OwnerID:      alert.OwnerID,
		Symbol:       alert.Symbol,
		FiredAt:      now,
		TriggerCount: alert.TriggerCount,
		Trace:        outcome.Trace,
		Actions:      alert.Actions,
	}

	decision := Decision{Fired: true, ConditionMet: true, Event: event}
	if alert.ReachedMaxTriggers() {
		alert.Status = model.StatusExpired
		decision.Expired = true
	} else {
		alert.Status = model.StatusActive
	}
	return decision
}

// Pause 暂停预警，仅允许从 active 进入 paused
func (l *Lifecycle) Pause(alert *model.SmartAlert, now time.Time) error {
	if alert.Status != model.StatusActive {
		return fmt.Errorf("状态 %s 不允许暂停", alert.Status)
	}
	alert.Status = model.StatusPaused
	alert.UpdatedAt = now
	return nil
}

// Resume 恢复预警，仅允许从 paused 回到 active；已过有效期的直接进入 expired
func (l *Lifecycle) Resume(alert *model.SmartAlert, now time.Time) error {
	if alert.Status != model.StatusPaused {
		return fmt.Errorf("状态 %s 不允许恢复", alert.Status)
	}
	if alert.PastExpiry(now) {
		alert.Status = model.StatusExpired
		return fmt.Errorf("预警已过有效期")
	}
	alert.Status = model.StatusActive
	alert.UpdatedAt = now
	return nil
}

// Disable 停用预警，终态
func (l *Lifecycle) Disable(alert *model.SmartAlert, now time.Time) error {
	if alert.Status.Terminal() {
		return fmt.Errorf("状态 %s 已是终态", alert.Status)
	}
	alert.Status = model.StatusDisabled
	alert.UpdatedAt = now
	return nil
}
