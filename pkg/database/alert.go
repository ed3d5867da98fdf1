// pkg/database/alert.go
package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

type SmartAlertDB struct {
	db *gorm.DB
}

func (a *SmartAlertDB) Create(alert *model.SmartAlert) error {
	if err := a.db.Create(alert).Error; err != nil {
		return fmt.Errorf("保存预警失败: %w", err)
	}
	return nil
}

func (a *SmartAlertDB) GetByID(alertID string) (*model.SmartAlert, error) {
	var alert model.SmartAlert
	err := a.db.First(&alert, "id = ?", alertID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("获取预警失败: %w", err)
	}
	return &alert, nil
}

// List 按属主分页列出预警，status 为空表示不过滤
func (a *SmartAlertDB) List(ownerID string, status model.AlertStatus, limit, offset int) ([]*model.SmartAlert, int64, error) {
	query := a.db.Model(&model.SmartAlert{}).Where("owner_id = ?", ownerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计预警数量失败: %w", err)
	}

	var alerts []*model.SmartAlert
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&alerts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询预警列表失败: %w", err)
	}
	return alerts, total, nil
}

// ListActive 引擎装载用：全部 active 状态的预警
func (a *SmartAlertDB) ListActive() ([]*model.SmartAlert, error) {
	var alerts []*model.SmartAlert
	err := a.db.Where("status = ?", model.StatusActive).Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("查询在线预警失败: %w", err)
	}
	return alerts, nil
}

// Update 整行更新，定义变更后的评估状态由调用方另行丢弃
func (a *SmartAlertDB) Update(alert *model.SmartAlert) error {
	if err := a.db.Save(alert).Error; err != nil {
		return fmt.Errorf("更新预警失败: %w", err)
	}
	return nil
}

func (a *SmartAlertDB) UpdateStatus(alertID string, status model.AlertStatus) error {
	err := a.db.Model(&model.SmartAlert{}).
		Where("id = ?", alertID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("更新预警状态失败: %w", err)
	}
	return nil
}

// Delete 删除预警并连带丢弃评估状态，触发事件保留作审计
func (a *SmartAlertDB) Delete(alertID string) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.SmartAlert{}, "id = ?", alertID).Error; err != nil {
			return fmt.Errorf("删除预警失败: %w", err)
		}
		if err := tx.Delete(&model.EvaluationStateRecord{}, "alert_id = ?", alertID).Error; err != nil {
			return fmt.Errorf("删除评估状态失败: %w", err)
		}
		return nil
	})
}

// RecordFire 落盘一次触发：计数、最近触发时间，以及达到上限时的终态。
// 投递端失败不回滚这些字段。
func (a *SmartAlertDB) RecordFire(alertID string, firedAt time.Time, triggerCount int) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"trigger_count":     triggerCount,
			"last_triggered_at": firedAt,
		}
		if err := tx.Model(&model.SmartAlert{}).
			Where("id = ?", alertID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("更新触发计数失败: %w", err)
		}
		err := tx.Model(&model.SmartAlert{}).
			Where("id = ? AND max_triggers > 0 AND trigger_count >= max_triggers AND status NOT IN ?",
				alertID, []string{string(model.StatusExpired), string(model.StatusDisabled)}).
			Update("status", model.StatusExpired).Error
		if err != nil {
			return fmt.Errorf("更新终态失败: %w", err)
		}
		return nil
	})
}

// ExpireOverdue 过期扫描：把已过有效期的预警批量置为 expired
func (a *SmartAlertDB) ExpireOverdue(now time.Time) (int64, error) {
	res := a.db.Model(&model.SmartAlert{}).
		Where("expires_at IS NOT NULL AND expires_at < ? AND status IN ?",
			now, []string{string(model.StatusActive), string(model.StatusPaused)}).
		Update("status", model.StatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("过期扫描失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (a *SmartAlertDB) IncrementForkCount(alertID string) error {
	err := a.db.Model(&model.SmartAlert{}).
		Where("id = ?", alertID).
		UpdateColumn("fork_count", gorm.Expr("fork_count + 1")).Error
	if err != nil {
		return fmt.Errorf("更新复制计数失败: %w", err)
	}
	return nil
}
