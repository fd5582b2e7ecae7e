package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// PutRequest is the body of PUT /api/cache/{key}. A missing ttlSeconds
// stores the entry without expiry. TTLs are capped at ten years so the
// conversion to time.Duration cannot overflow.
type PutRequest struct {
	Value      *string `json:"value" validate:"required"`
	TTLSeconds *int64  `json:"ttlSeconds" validate:"omitempty,min=0,max=315360000"`
}

// ExpireRequest is the body of POST /api/cache/{key}/expire.
type ExpireRequest struct {
	TTLSeconds int64 `json:"ttlSeconds" validate:"required,min=1,max=315360000"`
}

// GetStats returns hybrid cache statistics
// @Summary Get cache statistics
// @Tags cache
// @Produce json
// @Router /api/cache/stats [get]
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.GetStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "Cache statistics", stats)
}

// GetValue returns the value stored under key
// @Summary Get a cached value
// @Tags cache
// @Produce json
// @Param key path string true "Cache key"
// @Router /api/cache/{key} [get]
func (h *Handlers) GetValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, ok, err := h.cache.Get(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.notFound(w, key)
		return
	}
	h.success(w, "Value retrieved", map[string]interface{}{"key": key, "value": value})
}

// PutValue stores a value under key
// @Summary Store a value
// @Tags cache
// @Accept json
// @Produce json
// @Param key path string true "Cache key"
// @Param body body PutRequest true "Value and optional TTL"
// @Router /api/cache/{key} [put]
func (h *Handlers) PutValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req PutRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var ttl time.Duration
	if req.TTLSeconds != nil {
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}
	if err := h.cache.Set(r.Context(), key, *req.Value, ttl); err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "Value stored", map[string]interface{}{"key": key, "ttlSeconds": req.TTLSeconds})
}

// DeleteValue removes key. Deleting an absent key still succeeds.
// @Summary Delete a value
// @Tags cache
// @Produce json
// @Param key path string true "Cache key"
// @Router /api/cache/{key} [delete]
func (h *Handlers) DeleteValue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	deleted := h.cache.Delete(r.Context(), key)
	h.success(w, "Delete processed", map[string]interface{}{"key": key, "deleted": deleted})
}

// Exists reports whether key holds a live entry
// @Summary Check whether a key exists
// @Tags cache
// @Produce json
// @Param key path string true "Cache key"
// @Router /api/cache/{key}/exists [get]
func (h *Handlers) Exists(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	exists, err := h.cache.Exists(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "Existence checked", map[string]interface{}{"key": key, "exists": exists})
}

// GetTTL returns the remaining lifetime of key in seconds, -1 for no
// expiry and -2 for a missing key
// @Summary Get the remaining TTL of a key
// @Tags cache
// @Produce json
// @Param key path string true "Cache key"
// @Router /api/cache/{key}/ttl [get]
func (h *Handlers) GetTTL(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	ttl, err := h.cache.GetTTL(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "TTL retrieved", map[string]interface{}{"key": key, "ttl": ttl})
}

// Expire sets a new TTL on an existing key
// @Summary Set the TTL of a key
// @Tags cache
// @Accept json
// @Produce json
// @Param key path string true "Cache key"
// @Param body body ExpireRequest true "New TTL"
// @Router /api/cache/{key}/expire [post]
func (h *Handlers) Expire(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req ExpireRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	updated, err := h.cache.Expire(r.Context(), key, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !updated {
		h.notFound(w, key)
		return
	}
	h.success(w, "TTL updated", map[string]interface{}{"key": key, "ttlSeconds": req.TTLSeconds})
}

// Clear removes every entry
// @Summary Clear the cache
// @Tags cache
// @Produce json
// @Router /api/cache/clear [post]
func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "Cache cleared", nil)
}

// Cleanup removes expired entries now instead of waiting for the schedule
// @Summary Remove expired entries
// @Tags cache
// @Produce json
// @Router /api/cache/cleanup [post]
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.CleanupExpiredEntries(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "Expired entries removed", map[string]interface{}{"removed": removed})
}
