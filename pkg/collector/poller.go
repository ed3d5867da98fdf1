package collector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/messaging"
	"github.com/dewei/AlphaRadar/pkg/metrics"
	"github.com/dewei/AlphaRadar/pkg/model"
)

// TickFetcher 行情快照获取接口
type TickFetcher interface {
	FetchSnapshot(ctx context.Context, symbols []string) ([]*model.MarketTick, error)
}

// TickPublisher 行情推送发布接口
type TickPublisher interface {
	Publish(subject string, data interface{}) error
}

// Poller 定时拉取行情快照并按标的发布到消息流
type Poller struct {
	fetcher   TickFetcher
	publisher TickPublisher
	symbols   []string
	interval  time.Duration
	log       *zap.Logger
}

// NewPoller 创建采集轮询器
func NewPoller(fetcher TickFetcher, publisher TickPublisher, symbols []string, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		fetcher:   fetcher,
		publisher: publisher,
		symbols:   symbols,
		interval:  interval,
		log:       logger,
	}
}

// Run 启动采集循环，ctx取消后返回
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("启动行情采集循环",
		zap.Int("symbols", len(p.symbols)),
		zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// 启动即拉一次，不等第一个tick
	p.collect(ctx)

	for {
		select {
		case <-ticker.C:
			p.collect(ctx)
		case <-ctx.Done():
			p.log.Info("停止行情采集循环")
			return
		}
	}
}

// collect 执行一轮拉取和发布
func (p *Poller) collect(ctx context.Context) {
	ticks, err := p.fetcher.FetchSnapshot(ctx, p.symbols)
	if err != nil {
		metrics.CollectorErrors.Inc()
		p.log.Error("拉取行情快照失败", zap.Error(err))
		return
	}

	published := 0
	for _, tick := range ticks {
		if err := p.publisher.Publish(messaging.SubjectTick(tick.Symbol), tick); err != nil {
			metrics.CollectorErrors.Inc()
			p.log.Error("发布行情推送失败",
				zap.String("symbol", tick.Symbol),
				zap.Error(err))
			continue
		}
		published++
	}

	metrics.TicksPublished.Add(float64(published))
	p.log.Debug("完成一轮行情采集",
		zap.Int("fetched", len(ticks)),
		zap.Int("published", published))
}
