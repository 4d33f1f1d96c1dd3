package metrics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// StageCountsProvider supplies current application counts per stage.
// Implemented by the application store.
type StageCountsProvider interface {
	StageCounts(ctx context.Context) (map[string]int, error)
}

// Collector periodically samples system and store state into gauges
type Collector struct {
	metrics     *Metrics
	counts      StageCountsProvider
	storagePath string
	interval    time.Duration
	startTime   time.Time
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewCollector creates a gauge collector
func NewCollector(m *Metrics, counts StageCountsProvider, storagePath string, interval time.Duration, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Collector{
		metrics:     m,
		counts:      counts,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the sampling loop
func (c *Collector) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop stops the sampling loop and waits for it to finish
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sample(ctx)
		}
	}
}

func (c *Collector) sample(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if info, err := os.Stat(c.storagePath); err == nil {
		c.metrics.StorageUsedBytes.Set(float64(info.Size()))
	}

	counts, err := c.counts.StageCounts(ctx)
	if err != nil {
		c.logger.Warn("failed to collect stage counts", "error", err)
		return
	}

	total := 0
	c.metrics.ApplicationsByStage.Reset()
	for stage, n := range counts {
		c.metrics.ApplicationsByStage.WithLabelValues(stage).Set(float64(n))
		total += n
	}
	c.metrics.ApplicationsTotal.Set(float64(total))
}
