package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/feed"
	"github.com/dewei/AlphaRadar/pkg/model"
	"github.com/dewei/AlphaRadar/pkg/state"
)

func newTestScanner(t *testing.T) (*Scanner, context.CancelFunc) {
	t.Helper()
	scanner := NewScanner(ScannerConfig{Workers: 2, QueueSize: 64, EventBuffer: 16},
		state.NewMemoryStore(), feed.NewTable(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	scanner.Start(ctx)
	return scanner, cancel
}

func priceTick(symbol string, price float64, asOf time.Time) *model.MarketTick {
	return &model.MarketTick{
		Symbol: symbol,
		AsOf:   asOf,
		Readings: []model.TickReading{
			{Type: model.DataPrice, Value: price},
		},
	}
}

func crossingAlert(id string, threshold float64) *model.SmartAlert {
	return &model.SmartAlert{
		ID:      id,
		OwnerID: "user-1",
		Name:    "上穿预警",
		Symbol:  "BTC/USDT",
		Status:  model.StatusActive,
		Root: &model.ConditionNode{Leaf: &model.Condition{
			Type:     model.DataPrice,
			Symbol:   "BTC/USDT",
			Operator: model.OpCrossesAbove,
			Value:    threshold,
		}},
		UpdatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func waitEvent(t *testing.T, scanner *Scanner) *model.TriggerEvent {
	t.Helper()
	select {
	case event := <-scanner.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("等待触发事件超时")
		return nil
	}
}

func expectNoEvent(t *testing.T, scanner *Scanner, wait time.Duration) {
	t.Helper()
	select {
	case event := <-scanner.Events():
		t.Fatalf("unexpected event %+v", event)
	case <-time.After(wait):
	}
}

func TestScannerFiresOnCrossing(t *testing.T) {
	scanner, cancel := newTestScanner(t)
	defer cancel()

	scanner.Upsert(crossingAlert("alert-1", 50000))

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	scanner.Dispatch(priceTick("BTC/USDT", 49000, t0))
	scanner.Dispatch(priceTick("BTC/USDT", 50500, t0.Add(time.Minute)))

	event := waitEvent(t, scanner)
	if event.AlertID != "alert-1" {
		t.Errorf("event alert_id = %s, want alert-1", event.AlertID)
	}
	if event.TriggerCount != 1 {
		t.Errorf("event trigger_count = %d, want 1", event.TriggerCount)
	}
	if event.Trace == nil {
		t.Error("event trace is nil")
	}
}

func TestScannerIgnoresOtherSymbols(t *testing.T) {
	scanner, cancel := newTestScanner(t)
	defer cancel()

	scanner.Upsert(crossingAlert("alert-1", 50000))

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	// 无关标的行情不触达该预警，基线从未建立
	scanner.Dispatch(priceTick("ETH/USDT", 2000, t0))
	scanner.Dispatch(priceTick("ETH/USDT", 3000, t0.Add(time.Minute)))

	expectNoEvent(t, scanner, 300*time.Millisecond)
}

func TestScannerRemoveStopsEvaluation(t *testing.T) {
	scanner, cancel := newTestScanner(t)
	defer cancel()

	scanner.Upsert(crossingAlert("alert-1", 50000))

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	scanner.Dispatch(priceTick("BTC/USDT", 49000, t0))
	scanner.Remove("alert-1")
	scanner.Dispatch(priceTick("BTC/USDT", 50500, t0.Add(time.Minute)))

	expectNoEvent(t, scanner, 300*time.Millisecond)
}

func TestScannerUpsertKeepsStateWhenDefinitionUnchanged(t *testing.T) {
	scanner, cancel := newTestScanner(t)
	defer cancel()

	alert := crossingAlert("alert-1", 50000)
	scanner.Upsert(alert)

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	scanner.Dispatch(priceTick("BTC/USDT", 49000, t0))

	// 同一 UpdatedAt 的重复装载不得丢弃基线
	same := crossingAlert("alert-1", 50000)
	same.UpdatedAt = alert.UpdatedAt
	scanner.Upsert(same)
	scanner.Dispatch(priceTick("BTC/USDT", 50500, t0.Add(time.Minute)))

	event := waitEvent(t, scanner)
	if event.AlertID != "alert-1" {
		t.Errorf("event alert_id = %s, want alert-1", event.AlertID)
	}
}

func TestScannerUpsertDiscardsStateOnDefinitionChange(t *testing.T) {
	scanner, cancel := newTestScanner(t)
	defer cancel()

	scanner.Upsert(crossingAlert("alert-1", 50000))

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	scanner.Dispatch(priceTick("BTC/USDT", 49000, t0))

	// 定义变更后旧基线作废，下一笔行情只是重建基线
	changed := crossingAlert("alert-1", 50000)
	changed.UpdatedAt = changed.UpdatedAt.Add(time.Minute)
	scanner.Upsert(changed)
	scanner.Dispatch(priceTick("BTC/USDT", 50500, t0.Add(time.Minute)))

	expectNoEvent(t, scanner, 300*time.Millisecond)
}

func TestScannerRetainDropsUnlisted(t *testing.T) {
	scanner, cancel := newTestScanner(t)
	defer cancel()

	scanner.Upsert(crossingAlert("alert-1", 50000))
	scanner.Upsert(crossingAlert("alert-2", 50000))

	scanner.Retain(map[string]bool{"alert-2": true})

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	scanner.Dispatch(priceTick("BTC/USDT", 49000, t0))
	scanner.Dispatch(priceTick("BTC/USDT", 50500, t0.Add(time.Minute)))

	// 只有保留下来的预警还能触发
	event := waitEvent(t, scanner)
	if event.AlertID != "alert-2" {
		t.Errorf("event alert_id = %s, want alert-2", event.AlertID)
	}
	expectNoEvent(t, scanner, 300*time.Millisecond)

	if got := scanner.Loaded(); got != 1 {
		t.Errorf("loaded after retain = %d, want 1", got)
	}
}

func TestScannerMaxTriggersUnloadsAlert(t *testing.T) {
	scanner, cancel := newTestScanner(t)
	defer cancel()

	alert := crossingAlert("alert-1", 50000)
	alert.MaxTriggers = 1
	scanner.Upsert(alert)

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	scanner.Dispatch(priceTick("BTC/USDT", 49000, t0))
	scanner.Dispatch(priceTick("BTC/USDT", 50500, t0.Add(time.Minute)))

	event := waitEvent(t, scanner)
	if event.TriggerCount != 1 {
		t.Fatalf("event trigger_count = %d, want 1", event.TriggerCount)
	}

	// 达到上限后预警被卸载，再次穿越不触发
	scanner.Dispatch(priceTick("BTC/USDT", 49000, t0.Add(2*time.Minute)))
	scanner.Dispatch(priceTick("BTC/USDT", 50500, t0.Add(3*time.Minute)))
	expectNoEvent(t, scanner, 300*time.Millisecond)
}
