// HTTP handlers for the notification query surface, mounted by the gateway.
//
// All routes expect an x-user-id header forwarded by the Gateway.
//
// Routes:
//
//	GET  /notifications               → page of the user's notifications
//	GET  /notifications/unread-count  → {"unreadCount": n}
//	POST /notifications/{id}/read     → mark one notification read
//	POST /notifications/read-all      → mark everything read
package notification

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// Handler serves the notification query interface over HTTP.
type Handler struct {
	store *Store
}

// NewHandler returns a configured Handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts all notification routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/notifications", h.handleList)
	mux.HandleFunc("/notifications/unread-count", h.handleUnreadCount)
	mux.HandleFunc("/notifications/read-all", h.handleMarkAllRead)
	mux.HandleFunc("/notifications/", h.handleNotificationAction)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	unreadOnly := r.URL.Query().Get("unreadOnly") == "true"

	items, total, unread, err := h.store.Get(r.Context(), userID, limit, offset, unreadOnly)
	if err != nil {
		log.Printf("[notifications] list error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, map[string]any{
		"notifications": items,
		"total":         total,
		"unreadCount":   unread,
	})
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	count, err := h.store.UnreadCount(r.Context(), userID)
	if err != nil {
		log.Printf("[notifications] unreadCount error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]int{"unreadCount": count})
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	count, err := h.store.MarkAllRead(r.Context(), userID)
	if err != nil {
		log.Printf("[notifications] markAllRead error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]int64{"marked": count})
}

// handleNotificationAction handles POST /notifications/{id}/read
func (h *Handler) handleNotificationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "read" {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	notificationID := parts[1]

	ok, err := h.store.MarkRead(r.Context(), notificationID)
	if err != nil {
		log.Printf("[notifications] markRead error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "notification not found", http.StatusNotFound)
		return
	}
	jsonOK(w, map[string]bool{"read": true})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
