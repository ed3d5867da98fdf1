package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/model"
)

func TestFetchSnapshot(t *testing.T) {
	asOf := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/market/snapshot" {
			t.Errorf("path = %s, want /v1/market/snapshot", r.URL.Path)
		}
		var req snapshotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("解析请求失败: %v", err)
		}
		if req.Token != "key123" {
			t.Errorf("token = %s, want key123", req.Token)
		}
		json.NewEncoder(w).Encode(snapshotResponse{
			Code: 0,
			Data: []snapshotItem{{
				Symbol: "BTC/USDT",
				Price:  50000,
				Volume: 1200,
				Ts:     asOf.UnixMilli(),
				Indicators: map[string]float64{
					"rsi(period=14)": 61.5,
					"obv":            123456,
				},
				Signals: map[string]float64{"breakout_prob": 0.8},
			}},
		})
	}))
	defer server.Close()

	client := NewMarketClient("key123", server.URL, 5*time.Second)
	ticks, err := client.FetchSnapshot(context.Background(), []string{"BTC/USDT"})
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}

	tick := ticks[0]
	if tick.Symbol != "BTC/USDT" {
		t.Errorf("symbol = %s, want BTC/USDT", tick.Symbol)
	}
	if !tick.AsOf.Equal(asOf) {
		t.Errorf("as_of = %v, want %v", tick.AsOf, asOf)
	}

	// 价格和成交量在前，指标按名称排序，读数顺序稳定
	wantKeys := []string{"price", "volume", "indicator:obv", "indicator:rsi(period=14)", "ml_signal:breakout_prob"}
	if len(tick.Readings) != len(wantKeys) {
		t.Fatalf("len(readings) = %d, want %d", len(tick.Readings), len(wantKeys))
	}
	for i, want := range wantKeys {
		if got := tick.Readings[i].MetricKey(); got != want {
			t.Errorf("readings[%d] key = %s, want %s", i, got, want)
		}
	}
	if tick.Readings[0].Value != 50000 {
		t.Errorf("price = %v, want 50000", tick.Readings[0].Value)
	}
}

func TestFetchSnapshotErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non 200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "api error code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(snapshotResponse{Code: 1001, Msg: "额度超限"})
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewMarketClient("key", server.URL, time.Second)
			if _, err := client.FetchSnapshot(context.Background(), []string{"BTC/USDT"}); err == nil {
				t.Error("FetchSnapshot() error = nil, want error")
			}
		})
	}
}

func TestFetchSnapshotRejectsEmptySymbols(t *testing.T) {
	client := NewMarketClient("key", "http://localhost:1", time.Second)
	if _, err := client.FetchSnapshot(context.Background(), nil); err == nil {
		t.Error("FetchSnapshot(nil) error = nil, want error")
	}
}

type stubFetcher struct {
	ticks []*model.MarketTick
	err   error
}

func (f *stubFetcher) FetchSnapshot(_ context.Context, _ []string) ([]*model.MarketTick, error) {
	return f.ticks, f.err
}

type recordingPublisher struct {
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(subject string, _ interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	return nil
}

func TestPollerCollectPublishesPerSymbol(t *testing.T) {
	asOf := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{ticks: []*model.MarketTick{
		{Symbol: "BTC/USDT", AsOf: asOf, Readings: []model.TickReading{{Type: model.DataPrice, Value: 50000}}},
		{Symbol: "ETH/USDT", AsOf: asOf, Readings: []model.TickReading{{Type: model.DataPrice, Value: 3000}}},
	}}
	publisher := &recordingPublisher{}

	poller := NewPoller(fetcher, publisher, []string{"BTC/USDT", "ETH/USDT"}, time.Second, zap.NewNop())
	poller.collect(context.Background())

	// 主题里的斜杠被规范化
	want := []string{"ticks.BTC_USDT", "ticks.ETH_USDT"}
	if len(publisher.subjects) != len(want) {
		t.Fatalf("published %d subjects, want %d", len(publisher.subjects), len(want))
	}
	for i, subject := range want {
		if publisher.subjects[i] != subject {
			t.Errorf("subjects[%d] = %s, want %s", i, publisher.subjects[i], subject)
		}
	}
}

func TestPollerCollectSurvivesFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("上游超时")}
	publisher := &recordingPublisher{}

	poller := NewPoller(fetcher, publisher, []string{"BTC/USDT"}, time.Second, zap.NewNop())
	poller.collect(context.Background())

	if len(publisher.subjects) != 0 {
		t.Errorf("published %d subjects after fetch failure, want 0", len(publisher.subjects))
	}
}
