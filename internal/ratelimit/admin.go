package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/schema"
)

// AdminHandler exposes inspection and unblock operations on limiter
// keys. Mount it behind authentication; it performs none itself.
type AdminHandler struct {
	limiter *DualLimiter
	decoder *schema.Decoder
	logger  *slog.Logger
}

// NewAdminHandler creates the admin surface for a limiter.
func NewAdminHandler(limiter *DualLimiter, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &AdminHandler{
		limiter: limiter,
		decoder: decoder,
		logger:  logger.With("component", "admin"),
	}
}

// keyRequest identifies a limiter key in admin requests.
type keyRequest struct {
	Kind string `schema:"kind,required"` // "user" or "ip"
	ID   string `schema:"id,required"`
}

func (q keyRequest) storeKey() (string, bool) {
	switch q.Kind {
	case "user":
		return UserKey(q.ID), true
	case "ip":
		return IPKey(q.ID), true
	default:
		return "", false
	}
}

// statusResponse reports a key's block state.
type statusResponse struct {
	Key          string     `json:"key"`
	Blocked      bool       `json:"blocked"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
}

// Register mounts the admin routes on the mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/v1/keys/status", h.handleStatus)
	mux.HandleFunc("POST /admin/v1/keys/unblock", h.handleUnblock)
}

func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var q keyRequest
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	key, ok := q.storeKey()
	if !ok {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "kind must be \"user\" or \"ip\"")
		return
	}

	until, blocked, err := h.limiter.Status(r.Context(), key, time.Now())
	if err != nil {
		h.logger.Error("Status check failed", "key", key, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "status check failed")
		return
	}

	resp := statusResponse{Key: key, Blocked: blocked}
	if blocked {
		resp.BlockedUntil = &until
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	var q keyRequest
	if err := h.decoder.Decode(&q, r.PostForm); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	key, ok := q.storeKey()
	if !ok {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "kind must be \"user\" or \"ip\"")
		return
	}

	if err := h.limiter.Unblock(r.Context(), key); err != nil {
		h.logger.Error("Unblock failed", "key", key, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unblock failed")
		return
	}

	h.logger.Info("Key unblocked", "key", key)
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode admin response", "error", err)
	}
}

func (h *AdminHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}
