package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/Kyria-Zaire/Roomshare-sub000/database"
	"github.com/Kyria-Zaire/Roomshare-sub000/models"
	"github.com/Kyria-Zaire/Roomshare-sub000/store"
	"github.com/Kyria-Zaire/Roomshare-sub000/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var validate = validator.New()

const unreadCountTimeout = 3 * time.Second

var (
	conversationStore *store.ConversationStore
	messageStore      *store.MessageStore
	hub               *websocket.Hub

	// Last successfully computed unread count per user, served when the live
	// query times out or fails. Degraded reads must never break the view.
	lastUnreadCount sync.Map
)

// InitMessaging wires the messaging handlers to their stores and the realtime
// hub. Called once from main after the database connection is up.
func InitMessaging(cs *store.ConversationStore, ms *store.MessageStore, h *websocket.Hub) {
	conversationStore = cs
	messageStore = ms
	hub = h
}

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	raw, _ := claims["user_id"].(string)
	return uuid.Parse(raw)
}

func GetUserConversations(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	conversations, err := conversationStore.FindByUser(c.Context(), userID)
	if err != nil {
		log.Printf("Failed to fetch conversations for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch conversations"})
	}

	return c.JSON(conversations)
}

func CreateOrGetConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	type Request struct {
		RecipientID    string `json:"recipient_id" validate:"required,uuid"`
		RoomID         string `json:"room_id" validate:"required"`
		RoomTitle      string `json:"room_title" validate:"max=255"`
		InitialMessage string `json:"initial_message" validate:"max=2000"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	recipientID, _ := uuid.Parse(req.RecipientID)

	var recipient models.User
	if err := database.DB.First(&recipient, "id = ?", recipientID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recipient not found"})
	}

	conversation, created, err := conversationStore.FindOrCreateBetween(c.Context(), userID, recipientID, req.RoomID, req.RoomTitle)
	if err != nil {
		return respondStoreError(c, err, "Failed to create conversation")
	}

	if created && req.InitialMessage != "" {
		message, err := messageStore.Create(c.Context(), conversation.ID, userID, req.InitialMessage)
		if err != nil {
			log.Printf("Failed to create initial message in conversation %s: %v", conversation.ID, err)
		} else {
			hub.Publish(message)
			conversation, _, _ = conversationStore.FindOrCreateBetween(c.Context(), userID, recipientID, req.RoomID, req.RoomTitle)
		}
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(conversation)
}

func GetConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation ID"})
	}

	conversation, err := conversationStore.FindByID(c.Context(), conversationID)
	if err != nil {
		return respondStoreError(c, err, "Failed to fetch conversation")
	}
	if !conversation.HasParticipant(userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a participant of this conversation"})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	messages, err := messageStore.GetByConversation(c.Context(), conversationID, limit)
	if err != nil {
		log.Printf("Failed to fetch messages for conversation %s: %v", conversationID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch messages"})
	}

	if _, err := messageStore.MarkAsRead(c.Context(), conversationID, userID); err != nil {
		log.Printf("Failed to mark conversation %s as read for user %s: %v", conversationID, userID, err)
	}

	return c.JSON(fiber.Map{
		"conversation": conversation,
		"messages":     messages,
	})
}

func SendMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	type Request struct {
		ConversationID string `json:"conversation_id" validate:"required,uuid"`
		Body           string `json:"body" validate:"required,max=2000"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	conversationID, _ := uuid.Parse(req.ConversationID)

	conversation, err := conversationStore.FindByID(c.Context(), conversationID)
	if err != nil {
		return respondStoreError(c, err, "Failed to fetch conversation")
	}
	if !conversation.HasParticipant(userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a participant of this conversation"})
	}

	message, err := messageStore.Create(c.Context(), conversationID, userID, req.Body)
	if err != nil {
		return respondStoreError(c, err, "Failed to send message")
	}

	// Best-effort push. A failed or dropped broadcast never rolls back the
	// write; polling clients pick the message up on their next cycle.
	hub.Publish(message)

	return c.Status(fiber.StatusCreated).JSON(message)
}

func DeleteMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	messageID, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message ID"})
	}

	deleted, err := messageStore.DeleteOwnMessage(c.Context(), messageID, userID)
	if err != nil {
		log.Printf("Failed to delete message %s for user %s: %v", messageID, userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete message"})
	}

	return c.JSON(fiber.Map{"deleted": deleted})
}

func GetUnreadCount(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), unreadCountTimeout)
	defer cancel()

	count, err := messageStore.UnreadCount(ctx, userID)
	if err != nil {
		log.Printf("Unread count degraded for user %s: %v", userID, err)
		if cached, ok := lastUnreadCount.Load(userID); ok {
			count = cached.(int64)
		} else {
			count = 0
		}
		return c.JSON(fiber.Map{"unread_count": count})
	}

	lastUnreadCount.Store(userID, count)
	return c.JSON(fiber.Map{"unread_count": count})
}

func respondStoreError(c *fiber.Ctx, err error, fallback string) error {
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error(), "field": ve.Field})
	}
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}
	log.Printf("[ERROR] %s: %v", fallback, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
}
