// Package api exposes the admin HTTP surface: enqueueing notifications,
// inspecting records and their event trail, suppression management, and
// operational stats.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/notify-engine/internal/eventlog"
	"github.com/ignite/notify-engine/internal/notification"
	"github.com/ignite/notify-engine/internal/store/postgres"
)

// Handlers bundles the stores the API serves from.
type Handlers struct {
	Queue        *postgres.QueueStore
	Suppressions *postgres.SuppressionStore
	Events       eventlog.Store
}

// SetupRoutes builds the router with the standard middleware stack.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/notifications", h.EnqueueNotification)
		r.Get("/notifications/{id}", h.GetNotification)
		r.Get("/notifications/{id}/events", h.GetNotificationEvents)
		r.Get("/stats", h.GetStats)
		r.Post("/suppressions", h.AddSuppression)
		r.Delete("/suppressions/{email}", h.RemoveSuppression)
	})

	return r
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// EnqueueRequest is the POST /api/notifications body.
type EnqueueRequest struct {
	EventType    string                      `json:"event_type"`
	Payload      map[string]interface{}      `json:"payload,omitempty"`
	Direct       *notification.DirectContent `json:"direct_content,omitempty"`
	RecipientIDs []string                    `json:"recipient_ids"`
	Channels     []string                    `json:"channels"`
	Priority     string                      `json:"priority,omitempty"`
	ScheduledAt  *time.Time                  `json:"scheduled_at,omitempty"`
}

// EnqueueNotification validates and inserts a new queue record.
func (h *Handlers) EnqueueNotification(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	channels := make([]notification.Channel, len(req.Channels))
	for i, ch := range req.Channels {
		channels[i] = notification.Channel(ch)
	}

	params := postgres.EnqueueParams{
		EventType:    req.EventType,
		Payload:      req.Payload,
		Direct:       req.Direct,
		RecipientIDs: req.RecipientIDs,
		Channels:     channels,
		Priority:     notification.Priority(req.Priority),
	}
	if req.ScheduledAt != nil {
		params.ScheduledAt = *req.ScheduledAt
	}

	id, err := h.Queue.Enqueue(r.Context(), params)
	if err != nil {
		if valErr, ok := err.(*notification.ValidationError); ok {
			respondError(w, http.StatusBadRequest, valErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":     id,
		"status": string(notification.StatusPending),
	})
}

// GetNotification returns one queue record.
func (h *Handlers) GetNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.Queue.Get(r.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "notification not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetNotificationEvents returns the append-only event trail for a record.
func (h *Handlers) GetNotificationEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.Events.ListByNotification(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "event lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notification_id": id,
		"events":          entries,
	})
}

// GetStats returns per-status queue counts.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Queue.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// SuppressionRequest is the POST /api/suppressions body.
type SuppressionRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
	Type   string `json:"type"`
}

// AddSuppression inserts or refreshes a suppression entry.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var req SuppressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "email required")
		return
	}
	if req.Type == "" {
		req.Type = "manual"
	}

	if err := h.Suppressions.Add(r.Context(), req.Email, req.Reason, req.Type); err != nil {
		respondError(w, http.StatusInternalServerError, "suppression add failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"email": req.Email, "type": req.Type})
}

// RemoveSuppression deletes a suppression entry.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.Suppressions.Remove(r.Context(), email); err != nil {
		respondError(w, http.StatusInternalServerError, "suppression remove failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"email": email, "removed": "true"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Serve runs the HTTP server until ctx is cancelled, then drains with a
// 10-second grace period.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
