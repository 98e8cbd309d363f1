package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/taxonomy"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	store Pinger
	tax   *taxonomy.Taxonomy
}

func NewSystemHandler(store Pinger, tax *taxonomy.Taxonomy) *SystemHandler {
	return &SystemHandler{store: store, tax: tax}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Store   string `json:"store"`
}

func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		loggerFrom(r.Context()).Warn("store health check failed", zap.Error(err))
		writeJSON(w, healthResponse{Status: "degraded", Service: "medequip", Store: "unavailable"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, healthResponse{Status: "ok", Service: "medequip", Store: "ok"}, http.StatusOK)
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"version": version, "buildTime": buildTime}, http.StatusOK)
	}
}

// TaxonomyHandler lists every equipment type with its prefix and issues.
func (h *SystemHandler) TaxonomyHandler(w http.ResponseWriter, r *http.Request) {
	writeList(w, h.tax.Entries())
}
