package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/maxpert/notifylist/keyspace"
	"github.com/maxpert/notifylist/notifylist"
	"github.com/maxpert/notifylist/publisher"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// PublisherStatus is the part of the publisher registry reported by /stats
type PublisherStatus interface {
	LastSeq() uint64
	Sinks() []publisher.SinkStatus
}

// AdminHandlers serves the HTTP API for registrations, keys and lists
type AdminHandlers struct {
	module    *notifylist.Module
	store     keyspace.Store
	nodeID    uint64
	backend   string
	started   time.Time
	publisher PublisherStatus
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(module *notifylist.Module, store keyspace.Store, nodeID uint64, backend string) *AdminHandlers {
	return &AdminHandlers{
		module:  module,
		store:   store,
		nodeID:  nodeID,
		backend: backend,
		started: time.Now(),
	}
}

// SetPublisher attaches the publisher registry so /stats reports sink cursors
func (h *AdminHandlers) SetPublisher(p PublisherStatus) {
	h.publisher = p
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}, hasMore bool, lastKey string) {
	response := map[string]interface{}{
		"data": data,
	}

	if hasMore || lastKey != "" {
		response["has_more"] = hasMore
		if lastKey != "" {
			response["last_key"] = lastKey
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseLimit parses limit parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 256, nil // default
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}

	if limit > 1024 {
		return 0, fmt.Errorf("limit cannot exceed 1024")
	}

	return limit, nil
}

// parseFrom parses from parameter for pagination
func parseFrom(r *http.Request) string {
	return r.URL.Query().Get("from")
}

// parseIndex parses an optional integer query parameter
func parseIndex(r *http.Request, name string, def int64) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %w", name, err)
	}
	return n, nil
}

// ttlSeconds converts a store TTL to the API form: -2 missing, -1 no expiry, else whole seconds
func ttlSeconds(ttl time.Duration) int64 {
	if ttl < 0 {
		return int64(ttl)
	}
	return int64((ttl + 500*time.Millisecond) / time.Second)
}

// formatTimestamp converts a time to ISO 8601 string
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
