package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/cache"
)

type HealthHandler struct {
	catalog       Catalog
	cache         cache.Cache
	amazonMessage string
	window        time.Duration
	maxRequests   int
}

// NewHealthHandler reports amazonMessage as the integration status; it is the
// configuration error when Amazon is disabled.
func NewHealthHandler(c Catalog, store cache.Cache, amazonMessage string, window time.Duration, maxRequests int) *HealthHandler {
	return &HealthHandler{
		catalog:       c,
		cache:         store,
		amazonMessage: amazonMessage,
		window:        window,
		maxRequests:   maxRequests,
	}
}

type amazonHealth struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

type cacheHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type rateLimitHealth struct {
	WindowMs    int64 `json:"windowMs"`
	MaxRequests int   `json:"maxRequests"`
}

type healthResponse struct {
	Success   bool            `json:"success"`
	Amazon    amazonHealth    `json:"amazon"`
	Cache     cacheHealth     `json:"cache"`
	RateLimit rateLimitHealth `json:"rateLimit"`
}

// Health handles GET /api/amazon/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Success: true,
		Amazon:  amazonHealth{Enabled: h.catalog.Enabled(), Message: h.amazonMessage},
		Cache:   cacheHealth{Type: h.cache.Name(), Status: "ok"},
		RateLimit: rateLimitHealth{
			WindowMs:    h.window.Milliseconds(),
			MaxRequests: h.maxRequests,
		},
	}
	if err := h.cache.Ping(ctx); err != nil {
		resp.Cache.Status = "error"
		resp.Cache.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
