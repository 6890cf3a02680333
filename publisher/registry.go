package publisher

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/notifylist/cfg"
	"github.com/maxpert/notifylist/telemetry"
	"github.com/rs/zerolog/log"
)

// LogDirName is the publish log directory under the data directory
const LogDirName = "publish_log"

// RegistryConfig configures the publisher registry
type RegistryConfig struct {
	DataDir     string                  // Parent of the publish log directory
	NodeID      uint64                  // Stamped on every event
	SinkConfigs []cfg.SinkConfiguration // From config
	Now         func() time.Time        // Clock, defaults to time.Now
}

// Registry owns the publish log and one worker per configured sink.
// It receives successfully pushed dispatch records through Mirror.
type Registry struct {
	log     *PublishLog
	workers []*Worker
	nodeID  uint64
	now     func() time.Time
	running atomic.Bool
	mu      sync.Mutex
}

// SinkStatus reports one worker's progress through the publish log
type SinkStatus struct {
	Name   string `json:"name"`
	Cursor uint64 `json:"cursor"`
}

// NewRegistry opens the publish log and creates a worker for every sink
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	pubLog, err := NewPublishLog(filepath.Join(config.DataDir, LogDirName))
	if err != nil {
		return nil, fmt.Errorf("failed to create publish log: %w", err)
	}

	registry := &Registry{
		log:     pubLog,
		workers: make([]*Worker, 0, len(config.SinkConfigs)),
		nodeID:  config.NodeID,
		now:     config.Now,
	}

	for _, sinkCfg := range config.SinkConfigs {
		if err := registry.AddSink(sinkCfg); err != nil {
			for _, worker := range registry.workers {
				if worker.config.Sink != nil {
					worker.config.Sink.Close()
				}
			}
			pubLog.Close()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
	}

	log.Info().
		Int("workers", len(registry.workers)).
		Msg("Publisher registry initialized")

	return registry, nil
}

// AddSink creates and adds a new worker for the given sink configuration
func (r *Registry) AddSink(config cfg.SinkConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snk, err := createSink(config)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	trans, err := createTransformer(config.Format)
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create transformer: %w", err)
	}

	filter, err := NewGlobFilter(config.FilterDestinations)
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create filter: %w", err)
	}

	worker, err := NewWorker(WorkerConfig{
		Name:            config.Name,
		Log:             r.log,
		Sink:            snk,
		Transformer:     trans,
		Filter:          filter,
		TopicPrefix:     config.TopicPrefix,
		BatchSize:       config.BatchSize,
		PollInterval:    time.Duration(config.PollIntervalMS) * time.Millisecond,
		RetryInitial:    time.Duration(config.RetryInitialMS) * time.Millisecond,
		RetryMax:        time.Duration(config.RetryMaxMS) * time.Millisecond,
		RetryMultiplier: config.RetryMultiplier,
	})
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create worker: %w", err)
	}

	r.workers = append(r.workers, worker)

	// A sink added to a running registry starts immediately
	if r.running.Load() {
		worker.Start()
	}

	log.Info().
		Str("sink", config.Name).
		Str("type", config.Type).
		Str("format", config.Format).
		Msg("Added publisher sink")

	return nil
}

// Start starts all workers
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return fmt.Errorf("registry already running")
	}

	log.Info().Int("workers", len(r.workers)).Msg("Starting publisher registry")

	for _, worker := range r.workers {
		worker.Start()
	}

	r.running.Store(true)

	return nil
}

// Stop stops all workers, closes their sinks and closes the publish log.
// A registry that was never started only releases its resources.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.log.closed.Load() {
		return
	}
	r.running.Store(false)

	log.Info().Msg("Stopping publisher registry")

	for _, worker := range r.workers {
		worker.Stop()
		if err := worker.config.Sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", worker.config.Name).Msg("Failed to close sink")
		}
	}

	if err := r.log.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close publish log")
	}

	log.Info().Msg("Publisher registry stopped")
}

// Append adds events to the publish log
func (r *Registry) Append(events []Event) error {
	if !r.running.Load() {
		return fmt.Errorf("registry not running")
	}
	return r.log.Append(events)
}

// Mirror appends one successfully pushed dispatch record to the publish log.
// Records mirrored before Start are kept and published once workers run.
func (r *Registry) Mirror(destination, key, op string, record []byte) error {
	events := []Event{{
		Destination: destination,
		Key:         key,
		Op:          op,
		Record:      append([]byte(nil), record...),
		PushedAt:    r.now().UnixMilli(),
		NodeID:      r.nodeID,
	}}

	if err := r.log.Append(events); err != nil {
		telemetry.PublisherAppendFailuresTotal.Inc()
		return fmt.Errorf("failed to mirror record for %q: %w", destination, err)
	}
	return nil
}

// LastSeq returns the most recently appended sequence number
func (r *Registry) LastSeq() uint64 {
	return r.log.LastSeq()
}

// Sinks returns each worker's cursor in configuration order
func (r *Registry) Sinks() []SinkStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SinkStatus, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, SinkStatus{Name: w.config.Name, Cursor: w.Cursor()})
	}
	return out
}

// createSink creates a sink based on the configuration
func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

// TransformerFactory is a function that creates a Transformer
type TransformerFactory func() Transformer

var (
	sinkFactories        = make(map[string]SinkFactory)
	transformerFactories = make(map[string]TransformerFactory)
	factoryMu            sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// RegisterTransformer registers a transformer factory for a format
func RegisterTransformer(format string, factory TransformerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	transformerFactories[format] = factory
}

// createTransformer creates a transformer based on the format
func createTransformer(format string) (Transformer, error) {
	factoryMu.RLock()
	factory, exists := transformerFactories[format]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown format: %s", format)
	}

	return factory(), nil
}
