package admin

import (
	"errors"
	"net/http"

	"github.com/maxpert/notifylist/notifylist"
)

// RegisterRequest is the body of POST /api/notifylist
type RegisterRequest struct {
	Pattern     string `json:"pattern"`
	Destination string `json:"destination"`
}

// Registration is one registry entry as returned by the API
type Registration struct {
	Pattern     string `json:"pattern"`
	Destination string `json:"destination"`
	Wildcard    bool   `json:"wildcard"`
}

// handleRegister runs NOTIFYLIST.SET for a JSON body
func (h *AdminHandlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Pattern == "" || req.Destination == "" {
		writeErrorResponse(w, http.StatusBadRequest, "pattern and destination are required")
		return
	}

	err := h.module.Register(req.Pattern, req.Destination)
	switch {
	case errors.Is(err, notifylist.ErrActivation):
		// The entry is stored; the subscription is retried on the next registration
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, notifylist.ErrClosed):
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSONResponse(w, Registration{
		Pattern:     req.Pattern,
		Destination: req.Destination,
		Wildcard:    notifylist.HasWildcard(req.Pattern),
	}, false, "")
}

// handleListRegistrations pages through the registry in pattern order
func (h *AdminHandlers) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	from := parseFrom(r)

	var (
		entries []Registration
		hasMore bool
		lastKey string
	)
	h.module.Registry().IterateFrom(from, func(pattern, destination string) bool {
		// from is the last_key of the previous page
		if from != "" && pattern == from {
			return true
		}
		if len(entries) == limit {
			hasMore = true
			return false
		}
		entries = append(entries, Registration{
			Pattern:     pattern,
			Destination: destination,
			Wildcard:    notifylist.HasWildcard(pattern),
		})
		return true
	})

	if entries == nil {
		entries = []Registration{}
	}
	if hasMore {
		lastKey = entries[len(entries)-1].Pattern
	}

	writeJSONResponse(w, entries, hasMore, lastKey)
}
