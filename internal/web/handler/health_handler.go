package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/xstarmail/authd/internal/oauth/store"
	"github.com/xstarmail/authd/internal/web/response"
)

type HealthHandler struct {
	Store store.Store
}

func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{Store: st}
}

func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.HandleHealth)

	// Liveness only reports the process is up; readiness also pings the
	// store, so a dead database takes the instance out of rotation.
	mux.HandleFunc("/healthz/live", h.HandleLiveness)
	mux.HandleFunc("/healthz/ready", h.HandleHealth)
}

type healthStatus struct {
	Status string `json:"status"`
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if err := h.Store.Ping(ctx); err != nil {
		response.JSONResponse(w, http.StatusServiceUnavailable, healthStatus{Status: "unhealthy"})
		return
	}

	response.JSONResponse(w, http.StatusOK, healthStatus{Status: "healthy"})
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	response.JSONResponse(w, http.StatusOK, healthStatus{Status: "healthy"})
}
