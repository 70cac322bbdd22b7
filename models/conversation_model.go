package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a thread between exactly two users about one room listing.
// Participants are stored in canonical order (ParticipantA < ParticipantB by
// uuid string comparison) and PeerKey is the unique "a:b:listingID" key that
// makes find-or-create idempotent under concurrent requests.
type Conversation struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	PeerKey      string    `gorm:"size:191;uniqueIndex;not null" json:"-"`
	ParticipantA uuid.UUID `gorm:"type:uuid;not null;index" json:"participant_a"`
	ParticipantB uuid.UUID `gorm:"type:uuid;not null;index" json:"participant_b"`

	// Listing snapshot, taken at creation time and never re-fetched.
	ListingID    string `gorm:"size:64;not null" json:"listing_id"`
	ListingTitle string `gorm:"size:255" json:"listing_title"`

	// Denormalized preview of the latest message. Best-effort cache: the
	// message timeline stays authoritative.
	LastMessagePreview string     `gorm:"size:400" json:"last_message_preview"`
	LastSenderID       *uuid.UUID `gorm:"type:uuid" json:"last_sender_id"`
	LastMessageAt      *time.Time `gorm:"index" json:"last_message_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// HasParticipant is the single authorization gate for everything scoped to a
// conversation: reads, sends, mark-as-read and channel subscription.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// CanonicalPair sorts the two user ids so (A,B) and (B,A) always map to the
// same stored record.
func CanonicalPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if x.String() > y.String() {
		return y, x
	}
	return x, y
}

// PeerKeyFor builds the unique lookup key for an unordered pair and a listing.
func PeerKeyFor(x, y uuid.UUID, listingID string) string {
	a, b := CanonicalPair(x, y)
	return a.String() + ":" + b.String() + ":" + listingID
}
