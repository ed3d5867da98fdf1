// pkg/state/memory.go
package state

import (
	"context"
	"sync"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// MemoryStore 进程内状态存储，回测与单测用，重启即失
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*model.EvaluationState
}

// NewMemoryStore 创建内存状态存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*model.EvaluationState)}
}

// Load 深拷贝返回，调用方持有的状态与存储内部互不影响
func (s *MemoryStore) Load(_ context.Context, alertID string) (*model.EvaluationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[alertID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, st *model.EvaluationState) error {
	if st == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.AlertID] = st.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, alertID)
	return nil
}

func (s *MemoryStore) All(_ context.Context) ([]*model.EvaluationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.EvaluationState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st.Clone())
	}
	return out, nil
}
