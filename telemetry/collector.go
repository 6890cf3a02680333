package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const listLengthTimeout = time.Second

// StatsProvider interface for components that provide sizes
type StatsProvider interface {
	// Size returns the number of live entries
	Size() int
}

// DestinationSource lists the destinations currently registered
type DestinationSource interface {
	Destinations() []string
}

// ListLengther reports the length of a list key
type ListLengther interface {
	LLen(ctx context.Context, key string) (int64, error)
}

// MetricsCollector periodically collects sizes and updates telemetry gauges
type MetricsCollector struct {
	keyspace StatsProvider
	registry StatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	destinations DestinationSource
	lists        ListLengther
}

// NewMetricsCollector creates a new metrics collector. Either provider may be nil.
func NewMetricsCollector(keyspace, registry StatsProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		keyspace: keyspace,
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// WatchLists samples the length of every destination into DestinationListLength.
// Call before Start.
func (mc *MetricsCollector) WatchLists(destinations DestinationSource, lists ListLengther) {
	mc.destinations = destinations
	mc.lists = lists
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.keyspace != nil {
		KeyspaceKeys.Set(float64(mc.keyspace.Size()))
	}
	if mc.registry != nil {
		RegistryPatterns.Set(float64(mc.registry.Size()))
	}
	if mc.destinations != nil && mc.lists != nil {
		mc.collectListLengths()
	}
}

func (mc *MetricsCollector) collectListLengths() {
	// Destinations replaced since the last pass must not keep reporting
	DestinationListLength.Reset()

	for _, dst := range mc.destinations.Destinations() {
		ctx, cancel := context.WithTimeout(context.Background(), listLengthTimeout)
		n, err := mc.lists.LLen(ctx, dst)
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("destination", dst).Msg("Failed to sample destination length")
			continue
		}
		DestinationListLength.With(dst).Set(float64(n))
	}
}
