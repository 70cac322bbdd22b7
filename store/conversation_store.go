package store

import (
	"context"
	"errors"

	"github.com/Kyria-Zaire/Roomshare-sub000/models"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// ConversationStore owns conversation records and their find-or-create
// idempotency guarantee: exactly one conversation per (unordered user pair,
// listing), no matter how many concurrent create attempts race for it.
type ConversationStore struct {
	db *gorm.DB

	// creates collapses concurrent find-or-create calls for the same peer
	// key into a single lookup+insert. The unique index on peer_key backstops
	// races this process cannot see (other instances, direct writes).
	creates singleflight.Group
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// FindOrCreateBetween returns the one conversation between userA and userB
// about listingID, creating it when missing. The pair is canonicalized before
// any lookup or write, so both orderings resolve to the same record. The
// second return value reports whether this call created the record.
func (s *ConversationStore) FindOrCreateBetween(ctx context.Context, userA, userB uuid.UUID, listingID, listingTitle string) (*models.Conversation, bool, error) {
	if userA == userB {
		return nil, false, invalid("recipient_id", "cannot start a conversation with yourself")
	}
	if userA == uuid.Nil || userB == uuid.Nil {
		return nil, false, invalid("recipient_id", "missing participant")
	}
	if listingID == "" {
		return nil, false, invalid("room_id", "listing id is required")
	}

	peerKey := models.PeerKeyFor(userA, userB, listingID)

	type result struct {
		conv    *models.Conversation
		created bool
	}
	v, err, _ := s.creates.Do(peerKey, func() (interface{}, error) {
		var conv models.Conversation
		err := s.db.WithContext(ctx).Where("peer_key = ?", peerKey).First(&conv).Error
		if err == nil {
			return result{&conv, false}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		a, b := models.CanonicalPair(userA, userB)
		conv = models.Conversation{
			PeerKey:      peerKey,
			ParticipantA: a,
			ParticipantB: b,
			ListingID:    listingID,
			ListingTitle: listingTitle,
		}
		err = s.db.WithContext(ctx).Create(&conv).Error
		if err == nil {
			return result{&conv, true}, nil
		}

		// Lost the insert race to another process: re-read the winner's row
		// instead of surfacing the conflict.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var winner models.Conversation
			if rerr := s.db.WithContext(ctx).Where("peer_key = ?", peerKey).First(&winner).Error; rerr != nil {
				return nil, rerr
			}
			return result{&winner, false}, nil
		}
		return nil, err
	})
	if err != nil {
		return nil, false, err
	}

	r := v.(result)
	return r.conv, r.created, nil
}

// FindByUser returns every conversation the user participates in, most
// recently active first. Conversations that have no messages yet sort last.
func (s *ConversationStore) FindByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Order("created_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (s *ConversationStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// participantConversationIDs resolves the ids of every conversation the user
// belongs to. Used to scope unread counting strictly to own conversations.
func (s *ConversationStore) participantConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
