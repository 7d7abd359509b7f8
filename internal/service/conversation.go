package service

import (
	"sort"
	"strings"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/pkg/validator"
)

// ConversationID derives the canonical id of the conversation between two
// users about a listing. Argument order of the users does not matter. The
// parts are joined with ':' and so may not contain it.
func ConversationID(listingID, userA, userB string) (string, error) {
	listingID, err := conversationPart("listing_id", listingID)
	if err != nil {
		return "", err
	}
	userA, err = conversationPart("user_id", userA)
	if err != nil {
		return "", err
	}
	userB, err = conversationPart("user_id", userB)
	if err != nil {
		return "", err
	}

	if userA > userB {
		userA, userB = userB, userA
	}
	return listingID + ":" + userA + ":" + userB, nil
}

func conversationPart(field, id string) (string, error) {
	id, err := validator.EnsureSafeID(field, id, 0)
	if err != nil {
		return "", domain.Validationf("%v", err)
	}
	if strings.Contains(id, ":") {
		return "", domain.Validationf("%s may not contain ':'", field)
	}
	return id, nil
}

// SummarizeConversations folds a user's messages into one summary per
// conversation. The last message is the newest one; the unread count covers
// every unread incoming message in the conversation. Summaries are returned
// newest first.
func SummarizeConversations(messages []domain.Message, userID string) []domain.ConversationSummary {
	sorted := make([]domain.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	index := make(map[string]int)
	var summaries []domain.ConversationSummary
	for _, m := range sorted {
		if m.ConversationID == "" {
			continue
		}

		unread := 0
		if m.UnreadFor(userID) {
			unread = 1
		}

		i, ok := index[m.ConversationID]
		if !ok {
			index[m.ConversationID] = len(summaries)
			summaries = append(summaries, domain.ConversationSummary{
				ConversationID:  m.ConversationID,
				ListingID:       m.ListingID,
				ParticipantID:   m.OtherParticipant(userID),
				LastMessageBody: m.Body,
				LastMessageAt:   m.CreatedAt,
				UnreadCount:     unread,
			})
			continue
		}

		s := &summaries[i]
		if m.CreatedAt.After(s.LastMessageAt) {
			s.ListingID = m.ListingID
			s.ParticipantID = m.OtherParticipant(userID)
			s.LastMessageBody = m.Body
			s.LastMessageAt = m.CreatedAt
		}
		s.UnreadCount += unread
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	if summaries == nil {
		summaries = []domain.ConversationSummary{}
	}
	return summaries
}
