package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/notifylist/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// Default batch size for reading events per poll cycle
	DefaultBatchSize = 100
	// Default interval between poll cycles
	DefaultPollInterval = 100 * time.Millisecond
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum number of retry attempts before giving up on a publish operation
	DefaultMaxRetries = 100
)

// WorkerConfig configures a sink worker
type WorkerConfig struct {
	Name            string        // Sink name (for cursor tracking)
	Log             *PublishLog   // Publish log to read from
	Sink            Sink          // Destination sink
	Transformer     Transformer   // Event transformer
	Filter          Filter        // Destination filter
	TopicPrefix     string        // Topic prefix (e.g., "notifylist")
	BatchSize       int           // Events per poll cycle
	PollInterval    time.Duration // Poll interval
	RetryInitial    time.Duration // Initial retry delay
	RetryMax        time.Duration // Max retry delay
	RetryMultiplier float64       // Backoff multiplier
	MaxRetries      int           // Maximum retry attempts
}

// Worker polls the PublishLog and publishes events to a sink
type Worker struct {
	config      WorkerConfig
	cursor      uint64        // Current position, owned by pollLoop
	cursorVal   atomic.Uint64 // Mirror of cursor for readers
	stopCh      chan struct{} // Stop signal
	doneCh      chan struct{} // Done signal
	running     atomic.Bool
	lifecycleMu sync.Mutex // Protects Start/Stop lifecycle operations
}

// NewWorker creates a worker positioned at the sink's persisted cursor
func NewWorker(config WorkerConfig) (*Worker, error) {
	// Validate config
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Log == nil {
		return nil, fmt.Errorf("publish log is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}
	if config.Filter == nil {
		return nil, fmt.Errorf("filter is required")
	}

	// Set defaults
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	// Load cursor from publish log
	cursor, err := config.Log.GetCursor(config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	// If cursor is 0 (new sink), find earliest available entry
	if cursor == 0 {
		earliest, err := findEarliestEntry(config.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to find earliest entry: %w", err)
		}
		cursor = earliest
	}

	w := &Worker{
		config: config,
		cursor: cursor,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	w.cursorVal.Store(cursor)

	return w, nil
}

// findEarliestEntry finds the earliest available entry in the log
func findEarliestEntry(pubLog *PublishLog) (uint64, error) {
	// Try to read from position 0
	events, err := pubLog.ReadFrom(0, 1)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		// Log is empty - start from 0
		return 0, nil
	}
	// Start from the first available entry minus 1
	// (ReadFrom reads from cursor+1, so we want cursor to be SeqNum-1)
	return events[0].SeqNum - 1, nil
}

// Start starts the worker goroutine
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return // Already running
	}

	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	log.Info().
		Str("worker", w.config.Name).
		Uint64("cursor", w.cursor).
		Msg("Starting publisher worker")

	go w.pollLoop()
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Load() {
		return // Not running
	}

	log.Info().Str("worker", w.config.Name).Msg("Stopping publisher worker")

	close(w.stopCh)
	<-w.doneCh // Wait for goroutine to finish
	w.running.Store(false)

	log.Info().Str("worker", w.config.Name).Msg("Publisher worker stopped")
}

// pollLoop is the main worker loop
func (w *Worker) pollLoop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		default:
			// Read batch of events
			events, err := w.config.Log.ReadFrom(w.cursor, w.config.BatchSize)
			if err != nil {
				log.Error().
					Err(err).
					Str("worker", w.config.Name).
					Uint64("cursor", w.cursor).
					Msg("Failed to read from publish log")
				w.sleep(w.config.PollInterval)
				continue
			}

			if len(events) == 0 {
				// No events available - sleep and retry
				w.sleep(w.config.PollInterval)
				continue
			}

			for _, event := range events {
				if err := w.processEvent(event); err != nil {
					log.Error().
						Err(err).
						Str("worker", w.config.Name).
						Uint64("seq", event.SeqNum).
						Msg("Failed to process event")
					return
				}
				w.cursor = event.SeqNum
				w.cursorVal.Store(event.SeqNum)
			}
		}
	}
}

// processEvent publishes one event and then advances the cursor.
// Delivery is at-least-once: a failed cursor write redelivers the event after restart.
// Filtered events advance the cursor without publishing.
func (w *Worker) processEvent(event Event) error {
	if !w.config.Filter.Match(event.Destination) {
		telemetry.PublisherEventsTotal.With(w.config.Name, "filtered").Inc()
		if err := w.config.Log.AdvanceCursor(w.config.Name, event.SeqNum); err != nil {
			log.Warn().
				Err(err).
				Str("worker", w.config.Name).
				Uint64("seq", event.SeqNum).
				Msg("Failed to advance cursor for filtered event")
		}
		return nil
	}

	data, err := w.config.Transformer.Transform(event)
	if err != nil {
		telemetry.PublisherEventsTotal.With(w.config.Name, "failed").Inc()
		return fmt.Errorf("failed to transform event: %w", err)
	}

	topic := w.buildTopic(event.Destination)
	if err := w.publishWithRetry(topic, event.Key, data); err != nil {
		telemetry.PublisherEventsTotal.With(w.config.Name, "failed").Inc()
		return err
	}
	telemetry.PublisherEventsTotal.With(w.config.Name, "published").Inc()

	if err := w.config.Log.AdvanceCursor(w.config.Name, event.SeqNum); err != nil {
		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Uint64("seq", event.SeqNum).
			Msg("Failed to advance cursor after successful publish - event may be redelivered")
	}

	return nil
}

// buildTopic returns {prefix}.{destination}, or the destination alone without a prefix
func (w *Worker) buildTopic(destination string) string {
	if w.config.TopicPrefix == "" {
		return destination
	}
	return w.config.TopicPrefix + "." + destination
}

// Cursor returns the sequence number of the last event this worker handled
func (w *Worker) Cursor() uint64 {
	return w.cursorVal.Load()
}

// publishWithRetry publishes data with exponential backoff retry
// Returns error if max retries exhausted or worker stopped
func (w *Worker) publishWithRetry(topic, key string, data []byte) error {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		err := w.config.Sink.Publish(topic, key, data)
		if err == nil {
			return nil
		}

		attempts++

		if w.config.MaxRetries > 0 && attempts >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish event, retrying")

		if !w.sleep(delay) {
			return fmt.Errorf("worker stopped during retry")
		}

		// Exponential backoff
		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}
}

// sleep sleeps for the given duration, checking stopCh
// Returns true if sleep completed, false if stopped
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
