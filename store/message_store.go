package store

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Kyria-Zaire/Roomshare-sub000/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageStore owns the message timeline of each conversation and the
// denormalized preview on the parent record. Participant membership is
// checked by the caller via Conversation.HasParticipant; the store stays a
// pure data component.
type MessageStore struct {
	db            *gorm.DB
	conversations *ConversationStore
}

func NewMessageStore(db *gorm.DB, conversations *ConversationStore) *MessageStore {
	return &MessageStore{db: db, conversations: conversations}
}

// Create persists a message and refreshes the parent conversation's preview
// fields in the same transaction. The body must be 1..2000 runes after trim.
func (s *MessageStore) Create(ctx context.Context, conversationID, senderID uuid.UUID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("body", "message body is required")
	}
	if utf8.RuneCountInString(body) > models.MaxMessageLength {
		return nil, invalid("body", "message body exceeds 2000 characters")
	}

	message := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Where("id = ?", conversationID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		// Last writer wins on the preview. It is a convenience cache, the
		// message rows stay authoritative.
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_message_preview": TruncatePreview(body),
				"last_sender_id":       senderID,
				"last_message_at":      message.CreatedAt,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// GetByConversation returns the most recent limit messages in chronological
// order: fetched newest-first for the cutoff, then reversed, so callers
// always see oldest-first.
func (s *MessageStore) GetByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkAsRead stamps read_at on every unread message in the conversation that
// the given user did not send, as one bulk update. Idempotent: a second call
// with no new messages updates zero rows. read_at never regresses to null.
func (s *MessageStore) MarkAsRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationID, userID).
		Update("read_at", time.Now())
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// DeleteOwnMessage removes a message only when userID authored it. Returns
// false, not an error, when nothing matched. Known limitation: deleting the
// latest message leaves the conversation preview stale until the heal job
// recomputes it.
func (s *MessageStore) DeleteOwnMessage(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND sender_id = ?", messageID, userID).
		Delete(&models.Message{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UnreadCount counts unread messages addressed to the user across all of
// their conversations. Membership is resolved first so messages from
// conversations the user does not participate in can never be counted.
func (s *MessageStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	conversationIDs, err := s.conversations.participantConversationIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(conversationIDs) == 0 {
		return 0, nil
	}

	var count int64
	err = s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id IN ? AND sender_id <> ? AND read_at IS NULL", conversationIDs, userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// TruncatePreview cuts the body to the preview length in runes, never
// splitting a multi-byte character.
func TruncatePreview(body string) string {
	runes := []rune(body)
	if len(runes) <= models.PreviewLength {
		return body
	}
	return string(runes[:models.PreviewLength])
}
