// pkg/state/store.go
package state

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// Store 评估状态存取接口。状态与预警记录分开存放，
// 删除或暂停预警时调用 Delete 整体丢弃。
type Store interface {
	// Load 不存在时返回 (nil, nil)
	Load(ctx context.Context, alertID string) (*model.EvaluationState, error)
	Save(ctx context.Context, st *model.EvaluationState) error
	Delete(ctx context.Context, alertID string) error
	// All 返回全部状态，落库快照任务用
	All(ctx context.Context) ([]*model.EvaluationState, error)
}

// New 按配置的后端名创建状态存储
func New(backend string, db *gorm.DB, rdb *redis.Client) (Store, error) {
	switch backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis 状态后端需要 redis 连接")
		}
		return NewRedisStore(rdb), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres 状态后端需要数据库连接")
		}
		return NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("未知状态后端: %s", backend)
	}
}
