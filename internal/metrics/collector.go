package metrics

import (
	"context"
	"sync"
	"time"

	"cache-service/internal/common/logging"
	"cache-service/internal/hybrid"
)

// StatsSource is implemented by hybrid.Manager.
type StatsSource interface {
	GetStats(ctx context.Context) (hybrid.CacheStats, error)
}

// Collector periodically copies hybrid cache statistics into gauges.
type Collector struct {
	source   StatsSource
	interval time.Duration
	logger   logging.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

func NewCollector(source StatsSource, interval time.Duration, logger logging.Logger) *Collector {
	return &Collector{
		source:   source,
		interval: interval,
		logger:   logging.OrGlobal(logger, "metrics-collector"),
		stop:     make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop started by Start. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Collect refreshes the gauges once.
func (c *Collector) Collect(ctx context.Context) {
	stats, err := c.source.GetStats(ctx)
	if err != nil {
		c.logger.Warn("Failed to collect hybrid cache stats", logging.Err(err))
		MetricsCollectionErrors.WithLabelValues("hybrid").Inc()
		HybridEntries.WithLabelValues("total").Set(-1) // stale
		return
	}

	HybridEntries.WithLabelValues("total").Set(float64(stats.TotalEntries))
	HybridEntries.WithLabelValues("expired").Set(float64(stats.ExpiredEntries))
	HybridEntries.WithLabelValues("active").Set(float64(stats.ActiveEntries))
	HybridEntries.WithLabelValues("memory").Set(float64(stats.MemorySize))
	HybridHitRate.Set(stats.HitRate)
}
