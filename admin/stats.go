package admin

import (
	"net/http"
	"time"
)

// handleHealth reports liveness and whether the keyspace subscription is up
func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":     "ok",
		"node_id":    h.nodeID,
		"backend":    h.backend,
		"subscribed": h.module.Active(),
		"started_at": formatTimestamp(h.started),
		"uptime_s":   int64(time.Since(h.started) / time.Second),
	}

	writeJSONResponse(w, response, false, "")
}

// handleStats returns registry and dispatcher counters
func (h *AdminHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.module.Stats()

	response := map[string]interface{}{
		"patterns":   h.module.Registry().Size(),
		"subscribed": h.module.Active(),
		"events":     stats.Events,
		"empty":      stats.Empty,
		"ignored":    stats.Ignored,
		"scans":      stats.Scans,
		"pushed":     stats.Pushed,
		"failed":     stats.Failed,
	}

	if sized, ok := h.store.(interface{ Size() int }); ok {
		response["keys"] = sized.Size()
	}

	if h.publisher != nil {
		response["publisher"] = map[string]interface{}{
			"last_seq": h.publisher.LastSeq(),
			"sinks":    h.publisher.Sinks(),
		}
	}

	writeJSONResponse(w, response, false, "")
}
