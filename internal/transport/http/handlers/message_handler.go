package handlers

import (
	"log/slog"
	"net/http"

	"github.com/vedran77/rentals/internal/service"
	"github.com/vedran77/rentals/internal/transport/http/middleware"
)

type MessageHandler struct {
	messagingService *service.MessagingService
	logger           *slog.Logger
}

func NewMessageHandler(messagingService *service.MessagingService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messagingService: messagingService, logger: logger}
}

type sendMessageRequest struct {
	ListingID  string `json:"listing_id" validate:"required,safeid"`
	ReceiverID string `json:"receiver_id" validate:"required,safeid"`
	Body       string `json:"body" validate:"required,max=5000"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input sendMessageRequest
	if !decodeBody(w, r, &input) {
		return
	}

	msg, err := h.messagingService.SendMessage(r.Context(), input.ListingID, userID, input.ReceiverID, input.Body)
	if err != nil {
		writeServiceError(w, h.logger, "Could not send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summaries, err := h.messagingService.ListUserConversations(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "Could not list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messagingService.ListConversationMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "Could not list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	n, err := h.messagingService.MarkConversationAsRead(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, "Could not mark conversation as read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}
