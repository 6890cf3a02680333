package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListResponse holds a range of list elements
type ListResponse struct {
	Key    string   `json:"key"`
	Length int64    `json:"length"`
	Items  []string `json:"items"`
}

// handleListRange returns LRANGE key start stop; defaults cover the whole list
func (h *AdminHandlers) handleListRange(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	start, err := parseIndex(r, "start", 0)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	stop, err := parseIndex(r, "stop", -1)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.store.LRange(r.Context(), key, start, stop)
	if err != nil {
		writeErrorResponse(w, storeErrorStatus(err), err.Error())
		return
	}
	length, err := h.store.LLen(r.Context(), key)
	if err != nil {
		writeErrorResponse(w, storeErrorStatus(err), err.Error())
		return
	}

	out := make([]string, len(items))
	for i, item := range items {
		out[i] = string(item)
	}

	writeJSONResponse(w, ListResponse{Key: key, Length: length, Items: out}, false, "")
}

// handleListPop removes and returns the head of the list
func (h *AdminHandlers) handleListPop(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	item, ok, err := h.store.LPop(r.Context(), key)
	if err != nil {
		writeErrorResponse(w, storeErrorStatus(err), err.Error())
		return
	}
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "list is empty")
		return
	}

	writeJSONResponse(w, map[string]interface{}{"key": key, "item": string(item)}, false, "")
}
