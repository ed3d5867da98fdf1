// pkg/state/redis.go
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dewei/AlphaRadar/pkg/model"
)

const redisKeyPrefix = "alpharadar:evalstate:"

// RedisStore 在线热路径的状态存储，每次评估后整体写入
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 状态存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(alertID string) string {
	return redisKeyPrefix + alertID
}

func (s *RedisStore) Load(ctx context.Context, alertID string) (*model.EvaluationState, error) {
	data, err := s.client.Get(ctx, stateKey(alertID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取评估状态失败: %w", err)
	}
	var st model.EvaluationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("解析评估状态失败: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, st *model.EvaluationState) error {
	if st == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化评估状态失败: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(st.AlertID), data, 0).Err(); err != nil {
		return fmt.Errorf("写入评估状态失败: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, alertID string) error {
	if err := s.client.Del(ctx, stateKey(alertID)).Err(); err != nil {
		return fmt.Errorf("删除评估状态失败: %w", err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) ([]*model.EvaluationState, error) {
	var out []*model.EvaluationState
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("读取评估状态失败: %w", err)
		}
		var st model.EvaluationState
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("解析评估状态 %s 失败: %w", iter.Val(), err)
		}
		out = append(out, &st)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("扫描评估状态失败: %w", err)
	}
	return out, nil
}
