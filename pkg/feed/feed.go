// pkg/feed/feed.go
package feed

import (
	"time"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// Reading 一次读数查询的结果。Available 为 false 表示该路数据缺失，
// 评估端据此给出 unknown 而非 false。
type Reading struct {
	Value     float64   `json:"value"`
	AsOf      time.Time `json:"as_of"`
	Available bool      `json:"available"`
}

// DataFn 评估期间的读数查询函数。行情计算在采集端完成，评估端只读。
type DataFn func(dt model.DataType, symbol, metricKey string, asOf time.Time) Reading

// MapDataFn 从给定读数表构造查询函数，键为 SeriesKey(symbol, metricKey)。
// 回测按柱重放与试算评估都用它。
func MapDataFn(readings map[string]float64, asOf time.Time) DataFn {
	return func(_ model.DataType, symbol, metricKey string, _ time.Time) Reading {
		value, ok := readings[model.SeriesKey(symbol, metricKey)]
		if !ok {
			return Reading{}
		}
		return Reading{Value: value, AsOf: asOf, Available: true}
	}
}
