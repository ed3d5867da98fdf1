// pkg/engine/scanner.go
package engine

import (
	"context"
	"hash/fnv"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/feed"
	"github.com/dewei/AlphaRadar/pkg/metrics"
	"github.com/dewei/AlphaRadar/pkg/model"
	"github.com/dewei/AlphaRadar/pkg/state"
)

// ScannerConfig 扫描器参数
type ScannerConfig struct {
	Workers     int // 分片数，<=0 取 CPU 数
	QueueSize   int // 每分片队列长度
	EventBuffer int // 触发事件缓冲长度
}

type msgKind int

const (
	msgTick msgKind = iota
	msgUpsert
	msgRemove
	msgRetain
)

type shardMsg struct {
	kind    msgKind
	tick    *model.MarketTick
	alert   *model.SmartAlert
	alertID string
	keep    map[string]bool
}

// shard 一个评估分片。分片内的预警与评估状态只归本分片的 goroutine
// 访问，控制消息与行情走同一条队列，顺序即原子性。
type shard struct {
	id       int
	inbox    chan shardMsg
	alerts   map[string]*model.SmartAlert
	states   map[string]*model.EvaluationState
	bySymbol map[string]map[string]bool // 标的 → 预警 ID 集合
}

// Scanner 在线扫描器。预警按 ID 哈希归属分片，行情广播到全部分片，
// 同一预警的评估严格按到达顺序执行。触发事件经缓冲通道交给投递端，
// 评估路径永不阻塞在投递上。
type Scanner struct {
	cfg       ScannerConfig
	evaluator *Evaluator
	lifecycle *Lifecycle
	store     state.Store
	table     *feed.Table
	log       *zap.Logger

	shards []*shard
	events chan *model.TriggerEvent

	loaded  atomic.Int64
	dropped atomic.Uint64

	wg sync.WaitGroup
}

// NewScanner 创建扫描器
func NewScanner(cfg ScannerConfig, store state.Store, table *feed.Table, log *zap.Logger) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	s := &Scanner{
		cfg:       cfg,
		evaluator: NewEvaluator(),
		lifecycle: NewLifecycle(),
		store:     store,
		table:     table,
		log:       log,
		events:    make(chan *model.TriggerEvent, cfg.EventBuffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.shards = append(s.shards, &shard{
			id:       i,
			inbox:    make(chan shardMsg, cfg.QueueSize),
			alerts:   make(map[string]*model.SmartAlert),
			states:   make(map[string]*model.EvaluationState),
			bySymbol: make(map[string]map[string]bool),
		})
	}
	return s
}

// Events 触发事件输出通道，扫描器停止后关闭
func (s *Scanner) Events() <-chan *model.TriggerEvent {
	return s.events
}

// Start 启动全部分片，ctx 取消即停止
func (s *Scanner) Start(ctx context.Context) {
	for _, sh := range s.shards {
		s.wg.Add(1)
		go s.runShard(ctx, sh)
	}
	go func() {
		s.wg.Wait()
		close(s.events)
	}()
	s.log.Info("扫描器已启动", zap.Int("workers", s.cfg.Workers))
}

// Upsert 装载或替换预警。定义变更时旧评估状态作废
func (s *Scanner) Upsert(alert *model.SmartAlert) {
	if alert == nil || alert.Root == nil {
		return
	}
	s.shardFor(alert.ID).inbox <- shardMsg{kind: msgUpsert, alert: alert}
}

// Remove 卸载预警并丢弃评估状态，暂停与删除共用
func (s *Scanner) Remove(alertID string) {
	s.shardFor(alertID).inbox <- shardMsg{kind: msgRemove, alertID: alertID}
}

// Retain 只保留给定 ID 集合内的预警，周期重载的对账用
func (s *Scanner) Retain(keep map[string]bool) {
	for _, sh := range s.shards {
		sh.inbox <- shardMsg{kind: msgRetain, keep: keep}
	}
}

// Dispatch 行情入快照表并广播到全部分片。队列满时丢弃并计数，
// 采集端不被评估端拖慢
func (s *Scanner) Dispatch(tick *model.MarketTick) {
	if tick == nil {
		return
	}
	s.table.Apply(tick)
	for _, sh := range s.shards {
		select {
		case sh.inbox <- shardMsg{kind: msgTick, tick: tick}:
		default:
			s.dropped.Add(1)
			metrics.TicksDropped.Inc()
		}
	}
}

// Loaded 当前装载的预警数
func (s *Scanner) Loaded() int64 {
	return s.loaded.Load()
}

// Dropped 因队列满被丢弃的行情数
func (s *Scanner) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Scanner) shardFor(alertID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(alertID))
	return s.shards[int(h.Sum32())%len(s.shards)]
}

func (s *Scanner) runShard(ctx context.Context, sh *shard) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sh.inbox:
			switch msg.kind {
			case msgUpsert:
				s.handleUpsert(ctx, sh, msg.alert)
			case msgRemove:
				s.handleRemove(ctx, sh, msg.alertID)
			case msgRetain:
				s.handleRetain(ctx, sh, msg.keep)
			case msgTick:
				s.handleTick(ctx, sh, msg.tick)
			}
		}
	}
}

func (s *Scanner) handleUpsert(ctx context.Context, sh *shard, alert *model.SmartAlert) {
	old, exists := sh.alerts[alert.ID]
	if exists {
		s.unindex(sh, old)
		if !old.UpdatedAt.Equal(alert.UpdatedAt) {
			// 定义已变更，历史状态作废
			delete(sh.states, alert.ID)
			if err := s.store.Delete(ctx, alert.ID); err != nil {
				s.log.Warn("丢弃评估状态失败", zap.String("alert_id", alert.ID), zap.Error(err))
			}
		}
	} else {
		s.loaded.Add(1)
		metrics.ActiveAlerts.Inc()
	}
	sh.alerts[alert.ID] = alert
	for _, symbol := range alert.Root.Symbols() {
		set, ok := sh.bySymbol[symbol]
		if !ok {
			set = make(map[string]bool)
			sh.bySymbol[symbol] = set
		}
		set[alert.ID] = true
	}
	s.log.Debug("装载预警", zap.String("alert_id", alert.ID), zap.Int("shard", sh.id))
}

func (s *Scanner) handleRemove(ctx context.Context, sh *shard, alertID string) {
	alert, ok := sh.alerts[alertID]
	if !ok {
		return
	}
	s.unindex(sh, alert)
	delete(sh.alerts, alertID)
	delete(sh.states, alertID)
	if err := s.store.Delete(ctx, alertID); err != nil {
		s.log.Warn("丢弃评估状态失败", zap.String("alert_id", alertID), zap.Error(err))
	}
	s.loaded.Add(-1)
	metrics.ActiveAlerts.Dec()
	s.log.Debug("卸载预警", zap.String("alert_id", alertID))
}

func (s *Scanner) handleRetain(ctx context.Context, sh *shard, keep map[string]bool) {
	for id := range sh.alerts {
		if !keep[id] {
			s.handleRemove(ctx, sh, id)
		}
	}
}

func (s *Scanner) unindex(sh *shard, alert *model.SmartAlert) {
	for _, symbol := range alert.Root.Symbols() {
		if set, ok := sh.bySymbol[symbol]; ok {
			delete(set, alert.ID)
			if len(set) == 0 {
				delete(sh.bySymbol, symbol)
			}
		}
	}
}

func (s *Scanner) handleTick(ctx context.Context, sh *shard, tick *model.MarketTick) {
	ids := sh.bySymbol[tick.Symbol]
	if len(ids) == 0 {
		return
	}
	metrics.TicksConsumed.Inc()
	dataFn := s.table.DataFn()
	for id := range ids {
		alert := sh.alerts[id]
		if alert == nil || alert.Status != model.StatusActive {
			continue
		}
		s.evaluateAlert(ctx, sh, alert, tick.AsOf, dataFn)
	}
}

func (s *Scanner) evaluateAlert(ctx context.Context, sh *shard, alert *model.SmartAlert, now time.Time, dataFn feed.DataFn) {
	st, err := s.stateFor(ctx, sh, alert.ID)
	if err != nil {
		s.log.Error("加载评估状态失败", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}

	start := time.Now()
	outcome := s.evaluator.Evaluate(alert.Root, now, dataFn, st)
	metrics.EvalDuration.Observe(time.Since(start).Seconds())
	metrics.Evaluations.WithLabelValues(string(outcome.Verdict)).Inc()
	countUnknownLeaves(outcome.Trace)

	decision := s.lifecycle.Apply(alert, now, outcome)
	if err := s.store.Save(ctx, st); err != nil {
		s.log.Error("保存评估状态失败", zap.String("alert_id", alert.ID), zap.Error(err))
	}

	if decision.Suppressed {
		metrics.Suppressions.Inc()
		s.log.Debug("冷却期压制", zap.String("alert_id", alert.ID), zap.Time("at", now))
	}
	if decision.Fired {
		metrics.Fires.Inc()
		select {
		case s.events <- decision.Event:
			s.log.Info("发送触发事件",
				zap.String("alert_id", alert.ID),
				zap.String("symbol", alert.Symbol),
				zap.Int("trigger_count", decision.Event.TriggerCount))
		default:
			// 通道满即丢弃，评估路径不允许被投递端拖住
			metrics.EventsDropped.Inc()
			s.log.Warn("警告: 触发事件通道已满，丢弃事件", zap.String("alert_id", alert.ID))
		}
	}
	if decision.Expired {
		s.log.Info("预警进入终态",
			zap.String("alert_id", alert.ID),
			zap.String("status", string(alert.Status)))
		s.handleRemove(ctx, sh, alert.ID)
	}
}

func (s *Scanner) stateFor(ctx context.Context, sh *shard, alertID string) (*model.EvaluationState, error) {
	if st, ok := sh.states[alertID]; ok {
		return st, nil
	}
	st, err := s.store.Load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = model.NewEvaluationState(alertID)
	}
	sh.states[alertID] = st
	return st, nil
}

func countUnknownLeaves(trace *model.NodeTrace) {
	if trace == nil {
		return
	}
	if len(trace.Children) == 0 {
		if trace.Verdict == model.VerdictUnknown {
			metrics.UnknownLeaves.Inc()
		}
		return
	}
	for i := range trace.Children {
		countUnknownLeaves(&trace.Children[i])
	}
}
