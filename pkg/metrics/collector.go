package metrics

import (
	"context"
	"time"

	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/storage"
)

// Collector periodically polls the registry and gateway to refresh the
// gauges that can't be updated inline on every request — per-type,
// per-status artifact counts.
type Collector struct {
	registry *registry.Registry
	gateway  storage.Gateway
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector builds a collector over reg and gw, polling every
// interval (15s if zero).
func NewCollector(reg *registry.Registry, gw storage.Gateway, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{registry: reg, gateway: gw, interval: interval, stopCh: make(chan struct{})}
}

// Start begins polling in the background.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the polling goroutine.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, typeName := range c.registry.TypeNames() {
		rows, err := c.gateway.ListArtifacts(ctx, typeName)
		if err != nil {
			continue
		}
		counts := make(map[string]int)
		for _, a := range rows {
			counts[string(a.Status)]++
		}
		for _, status := range []string{"queued", "active", "deactivated"} {
			ArtifactsTotal.WithLabelValues(typeName, status).Set(float64(counts[status]))
		}
	}
}
