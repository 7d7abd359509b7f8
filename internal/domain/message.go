package domain

import "time"

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ListingID      string    `json:"listing_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Body           string    `json:"body"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationSummary is one inbox row as seen by a single user. It is derived
// from messages and never stored.
type ConversationSummary struct {
	ConversationID  string    `json:"conversation_id"`
	ListingID       string    `json:"listing_id"`
	ParticipantID   string    `json:"participant_id"`
	LastMessageBody string    `json:"last_message_body"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`
}

// OtherParticipant returns the participant of m that is not userID.
func (m Message) OtherParticipant(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// UnreadFor reports whether m is an unread incoming message for userID.
func (m Message) UnreadFor(userID string) bool {
	return m.ReceiverID == userID && !m.Read
}
