package jobs

import (
	"errors"
	"log"
	"time"

	"github.com/Kyria-Zaire/Roomshare-sub000/database"
	"github.com/Kyria-Zaire/Roomshare-sub000/models"
	"github.com/Kyria-Zaire/Roomshare-sub000/store"
	"gorm.io/gorm"
)

const previewHealWindow = time.Hour

// HealConversationPreviews recomputes the denormalized preview fields from
// the message timeline for recently active conversations. DeleteOwnMessage
// can leave the preview pointing at a message that no longer exists; the
// timeline is authoritative, so this job brings the cache back in line.
func HealConversationPreviews() {
	cutoff := time.Now().Add(-previewHealWindow)

	var conversations []models.Conversation
	err := database.DB.
		Where("last_message_at IS NOT NULL AND updated_at >= ?", cutoff).
		Find(&conversations).Error
	if err != nil {
		log.Printf("🔥 Preview heal: failed to list conversations: %v", err)
		return
	}

	healed := 0
	for _, conv := range conversations {
		var latest models.Message
		err := database.DB.
			Where("conversation_id = ?", conv.ID).
			Order("created_at DESC").
			Order("id DESC").
			First(&latest).Error

		updates := map[string]interface{}{}
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Every message was deleted; clear the preview entirely.
			updates["last_message_preview"] = ""
			updates["last_sender_id"] = nil
			updates["last_message_at"] = nil
		case err != nil:
			log.Printf("🔥 Preview heal: failed to read latest message of %s: %v", conv.ID, err)
			continue
		default:
			preview := store.TruncatePreview(latest.Body)
			if conv.LastMessagePreview == preview && conv.LastSenderID != nil && *conv.LastSenderID == latest.SenderID {
				continue
			}
			updates["last_message_preview"] = preview
			updates["last_sender_id"] = latest.SenderID
			updates["last_message_at"] = latest.CreatedAt
		}

		if err := database.DB.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error; err != nil {
			log.Printf("🔥 Preview heal: failed to update conversation %s: %v", conv.ID, err)
			continue
		}
		healed++
	}

	if healed > 0 {
		log.Printf("✅ Preview heal: refreshed %d conversation previews", healed)
	}
}
