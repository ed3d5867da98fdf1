// pkg/model/tick.go
package model

import (
	"time"
)

// TickReading 单路行情读数
type TickReading struct {
	Type   DataType          `json:"type"`
	Name   string            `json:"name,omitempty"`   // 指标名 / 形态名 / 信号名
	Params map[string]string `json:"params,omitempty"` // 指标参数
	Value  float64           `json:"value"`
}

// MetricKey 读数的规范键
func (r *TickReading) MetricKey() string {
	return MetricKey(r.Type, r.Name, r.Params)
}

// MarketTick 单标的一次行情推送，携带该时刻可用的全部读数
type MarketTick struct {
	Symbol   string        `json:"symbol"`
	AsOf     time.Time     `json:"as_of"`
	Readings []TickReading `json:"readings"`
	Source   string        `json:"source,omitempty"` // 采集来源标识
}
