// pkg/feed/snapshot.go
package feed

import (
	"sync"
	"time"

	"github.com/dewei/AlphaRadar/pkg/model"
)

type snapshotEntry struct {
	value float64
	asOf  time.Time
}

// Table 最新读数快照表，按 (symbol, metricKey) 索引。
// 行情消费协程写入，评估分片并发读取。
type Table struct {
	mu      sync.RWMutex
	entries map[string]snapshotEntry
}

// NewTable 创建空快照表
func NewTable() *Table {
	return &Table{entries: make(map[string]snapshotEntry)}
}

// Apply 写入一笔行情推送的全部读数
func (t *Table) Apply(tick *model.MarketTick) {
	if tick == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range tick.Readings {
		r := &tick.Readings[i]
		key := model.SeriesKey(tick.Symbol, r.MetricKey())
		t.entries[key] = snapshotEntry{value: r.Value, asOf: tick.AsOf}
	}
}

// Lookup 查询单路读数
func (t *Table) Lookup(symbol, metricKey string) (float64, time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[model.SeriesKey(symbol, metricKey)]
	if !ok {
		return 0, time.Time{}, false
	}
	return e.value, e.asOf, true
}

// Size 当前快照条目数
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// DataFn 以快照表为数据源的读数查询函数
func (t *Table) DataFn() DataFn {
	return func(_ model.DataType, symbol, metricKey string, _ time.Time) Reading {
		value, asOf, ok := t.Lookup(symbol, metricKey)
		if !ok {
			return Reading{}
		}
		return Reading{Value: value, AsOf: asOf, Available: true}
	}
}
