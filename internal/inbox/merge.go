package inbox

import (
	"slices"
	"sort"

	"github.com/vedran77/rentals/internal/domain"
)

// UpsertMessage returns messages with m replacing the message that has the
// same id, or added when there is none. The result is ordered oldest first
// and messages is not modified.
func UpsertMessage(messages []domain.Message, m domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(messages)+1)
	replaced := false
	for _, cur := range messages {
		if cur.ID == m.ID {
			out = append(out, m)
			replaced = true
			continue
		}
		out = append(out, cur)
	}
	if !replaced {
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpsertSummary returns summaries with s merged in by conversation id. An
// existing summary is replaced only when s is at least as new. The result is
// ordered newest first and summaries is not modified.
func UpsertSummary(summaries []domain.ConversationSummary, s domain.ConversationSummary) []domain.ConversationSummary {
	out := slices.Clone(summaries)
	i := slices.IndexFunc(out, func(cur domain.ConversationSummary) bool {
		return cur.ConversationID == s.ConversationID
	})
	switch {
	case i < 0:
		out = append(out, s)
	case !s.LastMessageAt.Before(out[i].LastMessageAt):
		out[i] = s
	default:
		return out
	}
	sortSummaries(out)
	return out
}

// ApplyMessage folds m into the summaries seen by userID. The last message
// only moves forward in time; unreadDelta adjusts the unread count, which
// never drops below zero.
func ApplyMessage(summaries []domain.ConversationSummary, m domain.Message, userID string, unreadDelta int) []domain.ConversationSummary {
	out := slices.Clone(summaries)
	i := slices.IndexFunc(out, func(cur domain.ConversationSummary) bool {
		return cur.ConversationID == m.ConversationID
	})
	if i < 0 {
		out = append(out, domain.ConversationSummary{
			ConversationID:  m.ConversationID,
			ListingID:       m.ListingID,
			ParticipantID:   m.OtherParticipant(userID),
			LastMessageBody: m.Body,
			LastMessageAt:   m.CreatedAt,
			UnreadCount:     max(0, unreadDelta),
		})
		sortSummaries(out)
		return out
	}

	s := &out[i]
	if !m.CreatedAt.Before(s.LastMessageAt) {
		s.ListingID = m.ListingID
		s.ParticipantID = m.OtherParticipant(userID)
		s.LastMessageBody = m.Body
		s.LastMessageAt = m.CreatedAt
	}
	s.UnreadCount = max(0, s.UnreadCount+unreadDelta)
	sortSummaries(out)
	return out
}

func sortSummaries(summaries []domain.ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
}
