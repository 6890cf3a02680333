package publisher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/notifylist/encoding"
	"github.com/rs/zerolog/log"
)

// Key prefixes for Pebble storage
const (
	prefixPubLog    = "/publog/"    // /publog/{16-digit-zero-padded-seq}
	prefixPubCursor = "/pubcursor/" // /pubcursor/{sinkName}
	prefixPubSeq    = "/pubseq"     // /pubseq -> uint64 (next sequence)
)

// Pebble configuration constants
const (
	memTableSize                = 64 << 20 // 64MB
	memTableStopWritesThreshold = 4
	l0CompactionThreshold       = 2
	l0StopWritesThreshold       = 12
	lBaseMaxBytes               = 256 << 20 // 256MB
	maxConcurrentCompactions    = 3
)

// Read and cleanup constants
const (
	defaultReadLimit    = 100  // Default limit for ReadFrom
	cleanupIntervalMask = 0x7F // Cleanup every 128 sequences (newSeq & cleanupIntervalMask == 0)
)

// ErrLogClosed is returned by operations on a closed publish log
var ErrLogClosed = errors.New("publish log is closed")

// PublishLog is a Pebble-backed append-only log of mirrored dispatch records.
// Each sink consumes it independently through a persisted cursor.
type PublishLog struct {
	db   *pebble.DB
	path string

	// In-memory cursor map for fast lookups
	cursors   map[string]uint64
	cursorsMu sync.RWMutex

	// Last assigned sequence number, advanced under appendMu
	nextSeq  atomic.Uint64
	appendMu sync.Mutex

	// Cleanup tracking
	cleanupMu      sync.Mutex
	cleanupRunning atomic.Bool
	cleanupWg      sync.WaitGroup

	// Closed state
	closed atomic.Bool
}

// NewPublishLog creates or opens a publish log stored at logPath
func NewPublishLog(logPath string) (*PublishLog, error) {
	opts := &pebble.Options{
		// Optimize for sequential writes
		MemTableSize:                memTableSize,
		MemTableStopWritesThreshold: memTableStopWritesThreshold,
		L0CompactionThreshold:       l0CompactionThreshold,
		L0StopWritesThreshold:       l0StopWritesThreshold,
		LBaseMaxBytes:               lBaseMaxBytes,
		MaxConcurrentCompactions:    func() int { return maxConcurrentCompactions },
		Logger:                      pebbleLogger{},
	}

	db, err := pebble.Open(logPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open publish log at %s: %w", logPath, err)
	}

	pl := &PublishLog{
		db:      db,
		path:    logPath,
		cursors: make(map[string]uint64),
	}

	// Load next sequence number from Pebble
	if err := pl.loadNextSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sequence number: %w", err)
	}

	// Load all cursors from Pebble into memory
	if err := pl.loadCursors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load cursors: %w", err)
	}

	return pl, nil
}

// loadNextSeq loads the next sequence number from Pebble
func (pl *PublishLog) loadNextSeq() error {
	val, closer, err := pl.db.Get([]byte(prefixPubSeq))
	if err == pebble.ErrNotFound {
		// First run - start at 0 (first Add(1) will give us sequence 1)
		pl.nextSeq.Store(0)
		return nil
	}
	if err != nil {
		return err
	}
	defer closer.Close()

	if len(val) != 8 {
		return fmt.Errorf("invalid sequence value length: %d", len(val))
	}

	seq := binary.LittleEndian.Uint64(val)
	pl.nextSeq.Store(seq)
	return nil
}

// loadCursors loads all cursors from Pebble into the in-memory map
func (pl *PublishLog) loadCursors() error {
	prefix := []byte(prefixPubCursor)
	iter, err := pl.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	count := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(prefixPubCursor):])
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if len(val) != 8 {
			return fmt.Errorf("corrupted cursor data for sink %s: invalid length %d", key, len(val))
		}

		cursor := binary.LittleEndian.Uint64(val)
		pl.cursors[key] = cursor
		count++
	}

	if err := iter.Error(); err != nil {
		return err
	}

	if count > 0 {
		log.Info().Int("cursors", count).Msg("Loaded publish log cursors")
	}

	return nil
}

// Append writes events in one batch and assigns their sequence numbers in place.
func (pl *PublishLog) Append(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	if pl.closed.Load() {
		return ErrLogClosed
	}

	// Concurrent appenders must not reserve the same sequence numbers
	pl.appendMu.Lock()
	defer pl.appendMu.Unlock()

	localSeq := pl.nextSeq.Load()

	batch := pl.db.NewBatch()
	defer batch.Close()

	for i := range events {
		// Assign monotonic sequence number locally
		localSeq++
		events[i].SeqNum = localSeq

		val, err := encoding.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		key := formatPubLogKey(localSeq)
		if err := batch.Set([]byte(key), val, nil); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}

	seqBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(seqBuf, localSeq)
	if err := batch.Set([]byte(prefixPubSeq), seqBuf, nil); err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	pl.nextSeq.Store(localSeq)

	return nil
}

// ReadFrom returns up to limit events with sequence numbers after cursor
func (pl *PublishLog) ReadFrom(cursor uint64, limit int) ([]Event, error) {
	if pl.closed.Load() {
		return nil, ErrLogClosed
	}

	if limit <= 0 {
		limit = defaultReadLimit
	}

	startKey := formatPubLogKey(cursor + 1)
	prefix := []byte(prefixPubLog)

	iter, err := pl.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(startKey),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	events := make([]Event, 0, limit)
	for iter.SeekGE([]byte(startKey)); iter.Valid() && len(events) < limit; iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var event Event
		if err := encoding.Unmarshal(val, &event); err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Skipping undecodable publish log entry")
			continue
		}

		events = append(events, event)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return events, nil
}

// LastSeq returns the most recently assigned sequence number, 0 when nothing was appended
func (pl *PublishLog) LastSeq() uint64 {
	return pl.nextSeq.Load()
}

// GetCursor returns the last sequence number sink has consumed
func (pl *PublishLog) GetCursor(sinkName string) (uint64, error) {
	if pl.closed.Load() {
		return 0, ErrLogClosed
	}

	pl.cursorsMu.RLock()
	cursor, exists := pl.cursors[sinkName]
	pl.cursorsMu.RUnlock()

	if exists {
		return cursor, nil
	}

	// Not in memory - check Pebble
	key := prefixPubCursor + sinkName
	val, closer, err := pl.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return 0, nil // New sink - start from beginning
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, fmt.Errorf("invalid cursor value length: %d", len(val))
	}

	cursor = binary.LittleEndian.Uint64(val)

	pl.cursorsMu.Lock()
	if existingCursor, exists := pl.cursors[sinkName]; exists {
		pl.cursorsMu.Unlock()
		return existingCursor, nil
	}
	pl.cursors[sinkName] = cursor
	pl.cursorsMu.Unlock()

	return cursor, nil
}

// AdvanceCursor updates the cursor for a sink and triggers cleanup periodically
func (pl *PublishLog) AdvanceCursor(sinkName string, newSeq uint64) error {
	if pl.closed.Load() {
		return ErrLogClosed
	}

	// Update in-memory map
	pl.cursorsMu.Lock()
	pl.cursors[sinkName] = newSeq
	pl.cursorsMu.Unlock()

	// Persist to Pebble
	key := prefixPubCursor + sinkName
	val := make([]byte, 8)
	binary.LittleEndian.PutUint64(val, newSeq)

	if err := pl.db.Set([]byte(key), val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	// At most one cleanup goroutine at a time
	if newSeq&cleanupIntervalMask == 0 {
		if pl.cleanupRunning.CompareAndSwap(false, true) {
			pl.cleanupWg.Add(1)
			go pl.cleanupAsync()
		}
	}

	return nil
}

// cleanup deletes entries below the lowest sink cursor
func (pl *PublishLog) cleanup() {
	pl.cleanupMu.Lock()
	defer pl.cleanupMu.Unlock()

	if pl.closed.Load() {
		return
	}

	pl.cursorsMu.RLock()
	if len(pl.cursors) == 0 {
		pl.cursorsMu.RUnlock()
		return
	}

	minCursor := uint64(^uint64(0)) // Max uint64
	for _, cursor := range pl.cursors {
		if cursor < minCursor {
			minCursor = cursor
		}
	}
	pl.cursorsMu.RUnlock()

	if minCursor == 0 {
		return
	}

	startKey := []byte(prefixPubLog)
	endKey := []byte(formatPubLogKey(minCursor))

	if err := pl.db.DeleteRange(startKey, endKey, pebble.Sync); err != nil {
		log.Warn().Err(err).Uint64("min_cursor", minCursor).Msg("Failed to cleanup publish log")
		return
	}

	log.Debug().Uint64("min_cursor", minCursor).Msg("Cleaned up publish log entries")
}

// cleanupAsync wraps cleanup with WaitGroup tracking for async execution
func (pl *PublishLog) cleanupAsync() {
	defer pl.cleanupWg.Done()
	defer pl.cleanupRunning.Store(false)
	pl.cleanup()
}

// Close waits for an in-flight cleanup and closes the Pebble database
func (pl *PublishLog) Close() error {
	if !pl.closed.CompareAndSwap(false, true) {
		return ErrLogClosed
	}

	pl.cleanupWg.Wait()

	if pl.db != nil {
		return pl.db.Close()
	}
	return nil
}

// formatPubLogKey formats a sequence number as a 16-digit zero-padded key
func formatPubLogKey(seq uint64) string {
	return fmt.Sprintf("%s%016x", prefixPubLog, seq)
}

// prefixUpperBound returns the upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil // Prefix is all 0xff
}

// pebbleLogger routes Pebble's own logging through zerolog
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Str("component", "publish_log").Msgf(format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Str("component", "publish_log").Msgf(format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Str("component", "publish_log").Msgf(format, args...)
}
