package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/dewei/AlphaRadar/pkg/model"
)

// MarketClient 行情快照API客户端
type MarketClient struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewMarketClient 创建行情客户端
func NewMarketClient(apiKey, baseURL string, timeout time.Duration) *MarketClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarketClient{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// snapshotRequest 快照请求结构
type snapshotRequest struct {
	Token   string   `json:"token"`
	Symbols []string `json:"symbols"`
}

// snapshotResponse 快照响应结构
type snapshotResponse struct {
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data []snapshotItem `json:"data"`
}

// snapshotItem 单个标的的快照。指标键使用 name(k=v,...) 规范形式，
// 与预警条件里的指标键对齐。
type snapshotItem struct {
	Symbol     string             `json:"symbol"`
	Price      float64            `json:"price"`
	Volume     float64            `json:"volume"`
	Ts         int64              `json:"ts"` // unix毫秒
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Patterns   map[string]float64 `json:"patterns,omitempty"`
	Whale      map[string]float64 `json:"whale,omitempty"`
	Signals    map[string]float64 `json:"signals,omitempty"`
}

// FetchSnapshot 拉取一批标的的行情快照并转换为统一数据模型
func (c *MarketClient) FetchSnapshot(ctx context.Context, symbols []string) ([]*model.MarketTick, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("标的列表不能为空")
	}

	reqBody, err := json.Marshal(snapshotRequest{
		Token:   c.APIKey,
		Symbols: symbols,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/market/snapshot", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("执行HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API返回非200状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var snap snapshotResponse
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if snap.Code != 0 {
		return nil, fmt.Errorf("API返回错误: %s", snap.Msg)
	}

	ticks := make([]*model.MarketTick, 0, len(snap.Data))
	for i := range snap.Data {
		ticks = append(ticks, snap.Data[i].toTick())
	}
	return ticks, nil
}

// toTick 转换为统一行情模型，读数顺序稳定
func (item *snapshotItem) toTick() *model.MarketTick {
	asOf := time.UnixMilli(item.Ts)
	if item.Ts == 0 {
		asOf = time.Now()
	}

	readings := []model.TickReading{
		{Type: model.DataPrice, Value: item.Price},
		{Type: model.DataVolume, Value: item.Volume},
	}
	readings = appendReadings(readings, model.DataIndicator, item.Indicators)
	readings = appendReadings(readings, model.DataPattern, item.Patterns)
	readings = appendReadings(readings, model.DataWhale, item.Whale)
	readings = appendReadings(readings, model.DataMLSignal, item.Signals)

	return &model.MarketTick{
		Symbol:   item.Symbol,
		AsOf:     asOf,
		Readings: readings,
		Source:   "snapshot",
	}
}

// appendReadings 按名称排序追加一类读数
func appendReadings(dst []model.TickReading, dt model.DataType, values map[string]float64) []model.TickReading {
	if len(values) == 0 {
		return dst
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dst = append(dst, model.TickReading{Type: dt, Name: name, Value: values[name]})
	}
	return dst
}
