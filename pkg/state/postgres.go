// pkg/state/postgres.go
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// PostgresStore 持久化状态存储，evaluation_states 表按预警 ID 覆盖写
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore 创建 Postgres 状态存储
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, alertID string) (*model.EvaluationState, error) {
	var record model.EvaluationStateRecord
	err := s.db.WithContext(ctx).Where("alert_id = ?", alertID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取评估状态失败: %w", err)
	}
	return record.State, nil
}

func (s *PostgresStore) Save(ctx context.Context, st *model.EvaluationState) error {
	if st == nil {
		return nil
	}
	record := model.EvaluationStateRecord{
		AlertID:   st.AlertID,
		State:     st,
		UpdatedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "alert_id"}}, UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("写入评估状态失败: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, alertID string) error {
	err := s.db.WithContext(ctx).Delete(&model.EvaluationStateRecord{}, "alert_id = ?", alertID).Error
	if err != nil {
		return fmt.Errorf("删除评估状态失败: %w", err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]*model.EvaluationState, error) {
	var records []model.EvaluationStateRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("读取评估状态列表失败: %w", err)
	}
	out := make([]*model.EvaluationState, 0, len(records))
	for i := range records {
		if records[i].State != nil {
			out = append(out, records[i].State)
		}
	}
	return out, nil
}
