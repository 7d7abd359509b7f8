package handlers

import "net/http"

// Routes registers the API on mux. Every route except /health, register and
// login runs behind auth.
func Routes(mux *http.ServeMux, auth func(http.Handler) http.Handler, u *AuthHandler, m *MessageHandler, n *NotificationHandler, a *ApplicationHandler) {
	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /api/v1/auth/register", u.Register)
	mux.HandleFunc("POST /api/v1/auth/login", u.Login)

	// Protected - Account
	mux.Handle("GET /api/v1/auth/me", auth(http.HandlerFunc(u.Me)))

	// Protected - Messages
	mux.Handle("POST /api/v1/messages", auth(http.HandlerFunc(m.Send)))
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(m.ListConversations)))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(m.ListMessages)))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(http.HandlerFunc(m.MarkRead)))

	// Protected - Notifications
	mux.Handle("GET /api/v1/notifications", auth(http.HandlerFunc(n.List)))
	mux.Handle("GET /api/v1/notifications/unread-count", auth(http.HandlerFunc(n.UnreadCount)))
	mux.Handle("POST /api/v1/notifications", auth(http.HandlerFunc(n.Create)))
	mux.Handle("POST /api/v1/notifications/read-all", auth(http.HandlerFunc(n.MarkAllRead)))
	mux.Handle("POST /api/v1/notifications/{id}/read", auth(http.HandlerFunc(n.MarkRead)))

	// Protected - Applications
	mux.Handle("POST /api/v1/applications", auth(http.HandlerFunc(a.Submit)))
	mux.Handle("GET /api/v1/applications", auth(http.HandlerFunc(a.List)))
	mux.Handle("POST /api/v1/applications/{id}/{action}", auth(http.HandlerFunc(a.Transition)))
}
