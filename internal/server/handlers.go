package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"recruitdesk/internal/common"
	"recruitdesk/internal/dbmysql"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler exposes the notification REST surface and wires mutations into
// the push hub so connected clients hear about them immediately.
type Handler struct {
	store common.NotificationStore
	hub   *Hub
	log   *zap.SugaredLogger
}

func NewHandler(store common.NotificationStore, hub *Hub, log *zap.SugaredLogger) *Handler {
	return &Handler{
		store: store,
		hub:   hub,
		log:   log,
	}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/notifications", h.hub.ServeWS)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(AuthMiddleware)
	api.HandleFunc("/notifications", h.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}", h.Update).Methods(http.MethodPatch)
	api.HandleFunc("/notifications/{id}", h.Delete).Methods(http.MethodDelete)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	notifications, err := h.store.ByUser(r.Context(), userID)
	if err != nil {
		h.log.Errorw("list notifications failed", "user", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	respondJSON(w, http.StatusOK, notifications)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	notification, err := h.store.ByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, dbmysql.ErrNotFound) {
			respondError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.log.Errorw("get notification failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get notification")
		return
	}

	respondJSON(w, http.StatusOK, notification)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req common.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Message == "" {
		respondError(w, http.StatusBadRequest, "userId and message are required")
		return
	}

	category := req.Category
	if category == "" {
		category = common.CategoryOther
	}

	notification := common.Notification{
		ID:          uuid.NewString(),
		RecipientID: req.UserID,
		Message:     req.Message,
		Category:    common.ParseCategory(category.String()),
		Metadata:    req.Metadata,
	}

	if err := h.store.Create(r.Context(), &notification); err != nil {
		h.log.Errorw("create notification failed", "user", req.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}

	h.hub.PublishNotification(notification)
	h.pushCount(r, notification.RecipientID)

	respondJSON(w, http.StatusCreated, notification)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req common.UpdateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notification, err := h.store.Update(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, dbmysql.ErrNotFound) {
			respondError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.log.Errorw("update notification failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}

	// read-state changes move the unread count; let listening clients know
	if req.IsRead != nil {
		h.pushCount(r, notification.RecipientID)
	}

	respondJSON(w, http.StatusOK, notification)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	notification, err := h.store.ByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, dbmysql.ErrNotFound) {
			respondError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.log.Errorw("delete notification lookup failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}

	if err := h.store.SoftDelete(r.Context(), id); err != nil {
		if errors.Is(err, dbmysql.ErrNotFound) {
			respondError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.log.Errorw("delete notification failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}

	h.pushCount(r, notification.RecipientID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pushCount(r *http.Request, userID string) {
	count, err := h.store.UnreadCount(r.Context(), userID)
	if err != nil {
		h.log.Warnw("unread count lookup failed", "user", userID, "error", err)
		return
	}
	h.hub.PublishCount(userID, count)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
