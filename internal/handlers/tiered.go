package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"cache-service/internal/common/errors"
	"cache-service/internal/tiered"
)

// TieredPutRequest is the body of PUT /api/tiered/{name}/{key}. An empty
// value is cached as a miss marker unless the cache disallows nulls.
type TieredPutRequest struct {
	Value *string `json:"value" validate:"required"`
}

// ListTiered returns the registered cache names and the L2 breaker state
// @Summary List tiered caches
// @Tags tiered
// @Produce json
// @Router /api/tiered [get]
func (h *Handlers) ListTiered(w http.ResponseWriter, r *http.Request) {
	if !h.tieredEnabled(w, r) {
		return
	}
	h.success(w, "Tiered caches", map[string]interface{}{
		"caches":  h.tiered.CacheNames(),
		"breaker": h.tiered.BreakerStats(),
	})
}

// GetTiered looks key up in the named cache without loading it
// @Summary Get a tiered cache entry
// @Tags tiered
// @Produce json
// @Param name path string true "Cache name"
// @Param key path string true "Cache key"
// @Router /api/tiered/{name}/{key} [get]
func (h *Handlers) GetTiered(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.existingTiered(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]

	value, ok := cache.Lookup(r.Context(), key)
	if !ok {
		h.notFound(w, key)
		return
	}

	data := map[string]interface{}{"cache": cache.Name(), "key": key, "value": nil}
	if value != nil {
		data["value"] = string(value)
	}
	h.success(w, "Value retrieved", data)
}

// PutTiered writes key to the named cache, creating the cache on first use
// @Summary Store a tiered cache entry
// @Tags tiered
// @Accept json
// @Produce json
// @Param name path string true "Cache name"
// @Param key path string true "Cache key"
// @Param body body TieredPutRequest true "Value"
// @Router /api/tiered/{name}/{key} [put]
func (h *Handlers) PutTiered(w http.ResponseWriter, r *http.Request) {
	if !h.tieredEnabled(w, r) {
		return
	}
	vars := mux.Vars(r)
	if err := validateScope(r, vars["name"]); err != nil {
		h.fail(w, r, err)
		return
	}

	var req TieredPutRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.tiered.Cache(vars["name"]).Put(r.Context(), vars["key"], []byte(*req.Value)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "Value stored", map[string]interface{}{"cache": vars["name"], "key": vars["key"]})
}

// EvictTiered removes key from the named cache on every node
// @Summary Evict a tiered cache entry
// @Tags tiered
// @Produce json
// @Param name path string true "Cache name"
// @Param key path string true "Cache key"
// @Router /api/tiered/{name}/{key} [delete]
func (h *Handlers) EvictTiered(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.existingTiered(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]

	if err := cache.Evict(r.Context(), key); err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "Value evicted", map[string]interface{}{"cache": cache.Name(), "key": key})
}

// ClearTiered removes the caller tenant's entries from the named cache
// @Summary Clear a tiered cache for the caller's tenant
// @Tags tiered
// @Produce json
// @Param name path string true "Cache name"
// @Router /api/tiered/{name}/clear [post]
func (h *Handlers) ClearTiered(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.existingTiered(w, r)
	if !ok {
		return
	}

	if err := cache.Clear(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, "Cache cleared", map[string]interface{}{"cache": cache.Name()})
}

func (h *Handlers) tieredEnabled(w http.ResponseWriter, r *http.Request) bool {
	if h.tiered != nil {
		return true
	}
	h.fail(w, r, errors.ConfigError("tiered cache is not configured"))
	return false
}

// existingTiered resolves the {name} cache without creating it. Unknown
// names are a business error.
func (h *Handlers) existingTiered(w http.ResponseWriter, r *http.Request) (*tiered.Cache, bool) {
	if !h.tieredEnabled(w, r) {
		return nil, false
	}
	name := mux.Vars(r)["name"]
	if err := validateScope(r, name); err != nil {
		h.fail(w, r, err)
		return nil, false
	}

	cache, ok := h.tiered.Lookup(name)
	if !ok {
		h.fail(w, r, errors.NotFoundError("cache "+name))
		return nil, false
	}
	return cache, true
}

func validateScope(r *http.Request, name string) error {
	if err := tiered.ValidateName(name); err != nil {
		return err
	}
	return tiered.ValidateTenant(tiered.TenantFromContext(r.Context()))
}
