package handlers

import (
	"log/slog"
	"net/http"

	"github.com/vedran77/rentals/internal/service"
	"github.com/vedran77/rentals/internal/transport/http/middleware"
)

const defaultNotificationLimit = 50

type NotificationHandler struct {
	notificationService *service.NotificationService
	logger              *slog.Logger
}

func NewNotificationHandler(notificationService *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService, logger: logger}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	status := r.URL.Query().Get("status")
	limit := queryInt(r, "limit", defaultNotificationLimit)

	notifications, err := h.notificationService.ListUserNotifications(r.Context(), userID, status, limit)
	if err != nil {
		writeServiceError(w, h.logger, "Could not list notifications", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	n, err := h.notificationService.CountUnreadNotifications(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "Could not count notifications", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateNotificationInput
	if !decodeBody(w, r, &input) {
		return
	}

	n, err := h.notificationService.CreateNotification(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.logger, "Could not create notification", err)
		return
	}

	writeJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notificationService.MarkNotificationAsRead(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "Could not mark notification as read", err)
		return
	}

	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	n, err := h.notificationService.MarkAllAsRead(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "Could not mark notifications as read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}
