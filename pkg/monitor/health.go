// pkg/monitor/health.go
package monitor

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// CheckFunc 单个依赖组件的健康探测，返回 nil 表示健康
type CheckFunc func() error

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// Health 依赖组件健康注册表
type Health struct {
	mutex  sync.RWMutex
	checks map[string]CheckFunc
	status map[string]*HealthStatus
}

// NewHealth 创建健康注册表
func NewHealth() *Health {
	return &Health{
		checks: make(map[string]CheckFunc),
		status: make(map[string]*HealthStatus),
	}
}

// Register 注册组件探测函数
func (h *Health) Register(component string, check CheckFunc) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.checks[component] = check
	h.status[component] = &HealthStatus{
		Component:   component,
		Status:      "unknown",
		LastChecked: time.Now(),
	}
}

// RunChecks 执行全部探测并更新状态，返回整体是否健康
func (h *Health) RunChecks() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	healthy := true
	for component, check := range h.checks {
		st := h.status[component]
		st.LastChecked = time.Now()
		if err := check(); err != nil {
			st.Status = "unhealthy"
			st.Message = err.Error()
			healthy = false
		} else {
			st.Status = "healthy"
			st.Message = ""
		}
	}
	return healthy
}

// Snapshot 当前全部组件状态，按组件名排序
func (h *Health) Snapshot() []*HealthStatus {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	statuses := make([]*HealthStatus, 0, len(h.status))
	for _, st := range h.status {
		copied := *st
		statuses = append(statuses, &copied)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Component < statuses[j].Component
	})
	return statuses
}

// Handler /health 处理器，任一组件不健康时返回 503
func (h *Health) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy := h.RunChecks()
		statuses := h.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		status := "healthy"
		if !healthy {
			status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     status,
			"components": statuses,
		})
	}
}
