// pkg/model/alert.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertStatus 预警生命周期状态
type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusPaused    AlertStatus = "paused"
	StatusTriggered AlertStatus = "triggered" // 瞬态：触发后立即回到 active
	StatusExpired   AlertStatus = "expired"   // 终态
	StatusDisabled  AlertStatus = "disabled"  // 终态
)

// Terminal 是否终态，终态预警不再参与评估
func (s AlertStatus) Terminal() bool {
	return s == StatusExpired || s == StatusDisabled
}

// ActionChannel 触发动作的投递通道
type ActionChannel string

const (
	ChannelNotification ActionChannel = "notification"
	ChannelWebhook      ActionChannel = "webhook"
	ChannelSignal       ActionChannel = "signal" // 交易信号通道
)

// AlertAction 触发后交给投递端执行的动作
type AlertAction struct {
	Channel ActionChannel `json:"channel"`
	Target  string        `json:"target"`            // 设备标识、回调地址或信号主题
	Payload string        `json:"payload,omitempty"` // 附加内容模板
}

// SmartAlert 智能预警：用户定义的条件树 + 生命周期参数
type SmartAlert struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     string         `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name        string         `gorm:"type:varchar(100);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Symbol      string         `gorm:"type:varchar(30);index" json:"symbol"` // 主标的，取条件树首个叶子
	Root        *ConditionNode `gorm:"type:jsonb;serializer:json" json:"root"`
	Status      AlertStatus    `gorm:"type:varchar(20);not null;index;default:active" json:"status"`

	// 触发节流与上限
	Cooldown        int        `gorm:"default:300" json:"cooldown"`     // 秒，两次触发的最小间隔
	MaxTriggers     int        `gorm:"default:0" json:"max_triggers"`   // 0 表示不限次数
	TriggerCount    int        `gorm:"default:0" json:"trigger_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	ExpiresAt       *time.Time `gorm:"index" json:"expires_at,omitempty"`

	Actions []AlertAction `gorm:"type:jsonb;serializer:json" json:"actions,omitempty"`

	// 公开与复制
	Public     bool   `gorm:"default:false;index" json:"public"`
	ForkCount  int    `gorm:"default:0" json:"fork_count"`
	ForkedFrom string `gorm:"type:uuid;default:null" json:"forked_from,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *SmartAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (SmartAlert) TableName() string {
	return "smart_alerts"
}

// InCooldown 当前时刻是否处于冷却期内
func (a *SmartAlert) InCooldown(now time.Time) bool {
	if a.LastTriggeredAt == nil || a.Cooldown <= 0 {
		return false
	}
	return now.Sub(*a.LastTriggeredAt) < time.Duration(a.Cooldown)*time.Second
}

// ReachedMaxTriggers 触发次数是否已达上限
func (a *SmartAlert) ReachedMaxTriggers() bool {
	return a.MaxTriggers > 0 && a.TriggerCount >= a.MaxTriggers
}

// PastExpiry 是否已过有效期
func (a *SmartAlert) PastExpiry(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}
