package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxMessageLength is the body limit in runes, counted after trimming.
const MaxMessageLength = 2000

// PreviewLength is the rune limit for the conversation preview snapshot.
const PreviewLength = 100

type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_messages_conv_created" json:"conversation_id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	ReadAt         *time.Time `json:"read_at"`

	// CreatedAt is the authoritative ordering key. Stored at nanosecond
	// resolution; equal timestamps break ties on id.
	CreatedAt time.Time `gorm:"index:idx_messages_conv_created" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
