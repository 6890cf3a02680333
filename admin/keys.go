package admin

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/notifylist/keyspace"
)

// SetKeyRequest is the body of PUT /api/keys/{key}
type SetKeyRequest struct {
	Value      string `json:"value"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

// ExpireRequest is the body of POST /api/keys/{key}/expire
type ExpireRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

// KeyResponse describes one string key
type KeyResponse struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, keyspace.ErrWrongType):
		return http.StatusConflict
	case errors.Is(err, keyspace.ErrInvalidExpire):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func ttlFromSeconds(secs int64) (time.Duration, bool) {
	if secs > maxTTLSeconds || secs < -maxTTLSeconds {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func (h *AdminHandlers) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, ok, err := h.store.Get(r.Context(), key)
	if err != nil {
		writeErrorResponse(w, storeErrorStatus(err), err.Error())
		return
	}
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "key not found")
		return
	}

	ttl, err := h.store.TTL(r.Context(), key)
	if err != nil {
		writeErrorResponse(w, storeErrorStatus(err), err.Error())
		return
	}

	writeJSONResponse(w, KeyResponse{Key: key, Value: string(value), TTLSeconds: ttlSeconds(ttl)}, false, "")
}

func (h *AdminHandlers) handleSetKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req SetKeyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TTLSeconds < 0 {
		writeErrorResponse(w, http.StatusBadRequest, "ttl_seconds must not be negative")
		return
	}

	ttl, ok := ttlFromSeconds(req.TTLSeconds)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, keyspace.ErrInvalidExpire.Error())
		return
	}
	if err := h.store.Set(r.Context(), key, []byte(req.Value), ttl); err != nil {
		writeErrorResponse(w, storeErrorStatus(err), err.Error())
		return
	}

	resp := KeyResponse{Key: key, Value: req.Value, TTLSeconds: int64(keyspace.TTLNoExpiry)}
	if req.TTLSeconds > 0 {
		resp.TTLSeconds = req.TTLSeconds
	}
	writeJSONResponse(w, resp, false, "")
}

func (h *AdminHandlers) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	n, err := h.store.Del(r.Context(), key)
	if err != nil {
		writeErrorResponse(w, storeErrorStatus(err), err.Error())
		return
	}

	writeJSONResponse(w, map[string]interface{}{"key": key, "deleted": n > 0}, false, "")
}

func (h *AdminHandlers) handleExpireKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req ExpireRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ttl, ok := ttlFromSeconds(req.TTLSeconds)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, keyspace.ErrInvalidExpire.Error())
		return
	}

	ok, err := h.store.Expire(r.Context(), key, ttl)
	if err != nil {
		writeErrorResponse(w, storeErrorStatus(err), err.Error())
		return
	}
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "key not found")
		return
	}

	writeJSONResponse(w, map[string]interface{}{"key": key, "ttl_seconds": req.TTLSeconds}, false, "")
}
