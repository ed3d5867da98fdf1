package feed

import (
	"testing"
	"time"

	"github.com/dewei/AlphaRadar/pkg/model"
)

func TestTableApplyAndLookup(t *testing.T) {
	table := NewTable()
	asOf := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	table.Apply(&model.MarketTick{
		Symbol: "BTC/USDT",
		AsOf:   asOf,
		Readings: []model.TickReading{
			{Type: model.DataPrice, Value: 50000},
			{Type: model.DataVolume, Value: 1200},
			{Type: model.DataIndicator, Name: "rsi", Params: map[string]string{"period": "14"}, Value: 61.5},
		},
	})

	if got := table.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3", got)
	}

	value, at, ok := table.Lookup("BTC/USDT", "price")
	if !ok || value != 50000 || !at.Equal(asOf) {
		t.Errorf("Lookup(price) = %v, %v, %v, want 50000 at %v", value, at, ok, asOf)
	}

	value, _, ok = table.Lookup("BTC/USDT", "indicator:rsi(period=14)")
	if !ok || value != 61.5 {
		t.Errorf("Lookup(rsi) = %v, %v, want 61.5", value, ok)
	}

	if _, _, ok := table.Lookup("ETH/USDT", "price"); ok {
		t.Error("Lookup(unknown symbol) ok = true, want false")
	}
}

func TestTableNewerTickOverwrites(t *testing.T) {
	table := NewTable()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Second)

	table.Apply(&model.MarketTick{
		Symbol:   "BTC/USDT",
		AsOf:     t0,
		Readings: []model.TickReading{{Type: model.DataPrice, Value: 50000}},
	})
	table.Apply(&model.MarketTick{
		Symbol:   "BTC/USDT",
		AsOf:     t1,
		Readings: []model.TickReading{{Type: model.DataPrice, Value: 50100}},
	})

	value, at, ok := table.Lookup("BTC/USDT", "price")
	if !ok || value != 50100 || !at.Equal(t1) {
		t.Errorf("Lookup() = %v, %v, %v, want 50100 at %v", value, at, ok, t1)
	}
	if got := table.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}
}

func TestTableDataFn(t *testing.T) {
	table := NewTable()
	asOf := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	table.Apply(&model.MarketTick{
		Symbol:   "BTC/USDT",
		AsOf:     asOf,
		Readings: []model.TickReading{{Type: model.DataPrice, Value: 50000}},
	})

	fn := table.DataFn()
	reading := fn(model.DataPrice, "BTC/USDT", "price", asOf)
	if !reading.Available || reading.Value != 50000 {
		t.Errorf("DataFn(price) = %+v, want available 50000", reading)
	}

	reading = fn(model.DataPrice, "BTC/USDT", "indicator:sma(period=200)", asOf)
	if reading.Available {
		t.Errorf("DataFn(missing) = %+v, want unavailable", reading)
	}
}

func TestMapDataFn(t *testing.T) {
	asOf := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	fn := MapDataFn(map[string]float64{"BTC/USDT|price": 49000}, asOf)

	reading := fn(model.DataPrice, "BTC/USDT", "price", asOf)
	if !reading.Available || reading.Value != 49000 || !reading.AsOf.Equal(asOf) {
		t.Errorf("MapDataFn(hit) = %+v, want 49000 at %v", reading, asOf)
	}
	if r := fn(model.DataPrice, "ETH/USDT", "price", asOf); r.Available {
		t.Errorf("MapDataFn(miss) = %+v, want unavailable", r)
	}
}
