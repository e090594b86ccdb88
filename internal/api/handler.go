package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/aamritt0/calendar-backend/internal/feed"
)

// EventService answers event queries and reports cache health.
type EventService interface {
	Query(ctx context.Context, keyword string, limit int) (*feed.Result, error)
	Status() feed.Status
}

// Handler binds the feed service to HTTP.
type Handler struct {
	Service EventService
}

func NewHandler(service EventService) *Handler {
	return &Handler{Service: service}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/events", h.GetEvents).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/healthz", h.GetHealth).Methods(http.MethodGet)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// GetEvents serves the filtered upcoming-event list.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer", Code: "bad_request"})
			return
		}
		limit = parsed
	}

	result, err := h.Service.Query(r.Context(), keyword, limit)
	if err != nil {
		if errors.Is(err, feed.ErrSourceUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "calendar source unavailable", Code: "source_unavailable"})
			return
		}
		slog.ErrorContext(r.Context(), "Event query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetHealth reports cache state without touching the upstream feed.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	st := h.Service.Status()
	status := http.StatusOK
	if !st.HasData && st.LastError != "" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
