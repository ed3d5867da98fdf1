// pkg/database/event.go
package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/dewei/AlphaRadar/pkg/model"
)

type TriggerEventDB struct {
	db *gorm.DB
}

func (e *TriggerEventDB) Create(event *model.TriggerEvent) error {
	if err := e.db.Create(event).Error; err != nil {
		return fmt.Errorf("保存触发事件失败: %w", err)
	}
	return nil
}

// ListByAlert 单条预警的触发历史，按触发时间倒序
func (e *TriggerEventDB) ListByAlert(alertID string, limit, offset int) ([]*model.TriggerEvent, int64, error) {
	query := e.db.Model(&model.TriggerEvent{}).Where("alert_id = ?", alertID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计触发事件失败: %w", err)
	}

	var events []*model.TriggerEvent
	err := query.Order("fired_at DESC").Limit(limit).Offset(offset).Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询触发历史失败: %w", err)
	}
	return events, total, nil
}

// ListByOwner 属主维度的触发历史
func (e *TriggerEventDB) ListByOwner(ownerID string, limit, offset int) ([]*model.TriggerEvent, error) {
	var events []*model.TriggerEvent
	err := e.db.Where("owner_id = ?", ownerID).
		Order("fired_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("查询触发历史失败: %w", err)
	}
	return events, nil
}
