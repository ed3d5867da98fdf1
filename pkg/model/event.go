// pkg/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TriggerEvent 触发事件：一次成功触发的完整上下文，也是投递端的输入
type TriggerEvent struct {
	ID      string `gorm:"type:uuid;primaryKey" json:"id"`
	AlertID string `gorm:"type:uuid;not null;index" json:"alert_id"`
	OwnerID string `gorm:"type:uuid;index" json:"owner_id"`
	Symbol  string `gorm:"type:varchar(30);index" json:"symbol"`

	FiredAt      time.Time     `gorm:"index:idx_trigger_fired_at" json:"fired_at"`
	TriggerCount int           `json:"trigger_count"` // 触发后的累计次数
	Trace        *NodeTrace    `gorm:"type:jsonb;serializer:json" json:"trace,omitempty"`
	Actions      []AlertAction `gorm:"type:jsonb;serializer:json" json:"actions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (e *TriggerEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

func (TriggerEvent) TableName() string {
	return "trigger_events"
}

// ControlOp 引擎控制指令类型
type ControlOp string

const (
	ControlUpsert ControlOp = "upsert" // 新增或更新预警，引擎重新装载
	ControlPause  ControlOp = "pause"  // 停止评估并丢弃推进状态
	ControlResume ControlOp = "resume"
	ControlDelete ControlOp = "delete"
)

// ControlMessage 管理面向引擎下发的控制消息，走 control.alerts 主题
type ControlMessage struct {
	Op      ControlOp `json:"op"`
	AlertID string    `json:"alert_id"`
	SentAt  time.Time `json:"sent_at"`
}
