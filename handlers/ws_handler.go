package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	configs "github.com/Kyria-Zaire/Roomshare-sub000/configs"
	"github.com/Kyria-Zaire/Roomshare-sub000/store"
	"github.com/Kyria-Zaire/Roomshare-sub000/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// clientFrame is what a connected client may send after authenticating:
// subscribe/unsubscribe to a conversation channel, or a message send over the
// socket instead of the HTTP endpoint.
type clientFrame struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Body           string `json:"body,omitempty"`
}

// ServeWs authenticates the connection with a first-frame token, registers it
// with the hub and then processes subscribe/unsubscribe/message frames until
// the peer goes away.
func ServeWs(c *websocketcontrib.Conn) {
	var authMsg clientFrame
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		log.Printf("WebSocket auth failed: invalid or missing auth message, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	claims, err := parseToken(authMsg.Token)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid token, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
		c.Close()
		return
	}

	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid user_id %q: %v", rawID, err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid user ID"})
		c.Close()
		return
	}

	log.Printf("WebSocket client authenticated: %s", userID)
	client := &websocket.Client{UserID: userID, Conn: c, Send: make(chan []byte, 32)}
	hub.Register <- client
	go client.WritePump()
	defer func() {
		hub.Unregister <- client
		c.Close()
	}()

	for {
		var frame clientFrame
		if err := c.ReadJSON(&frame); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for client %s: %v", userID, err)
			} else {
				log.Printf("WebSocket read error for client %s: %v", userID, err)
			}
			return
		}

		switch frame.Type {
		case "subscribe":
			conversationID, err := uuid.Parse(frame.ConversationID)
			if err != nil {
				_ = c.WriteJSON(fiber.Map{"error": "Invalid conversation ID"})
				continue
			}
			if err := hub.Subscribe(context.Background(), client, conversationID); err != nil {
				log.Printf("Subscribe denied for client %s on conversation %s: %v", userID, conversationID, err)
				_ = c.WriteJSON(subscribeError(err))
				continue
			}
			_ = c.WriteJSON(fiber.Map{"type": "subscribed", "conversation_id": conversationID})

		case "unsubscribe":
			conversationID, err := uuid.Parse(frame.ConversationID)
			if err != nil {
				_ = c.WriteJSON(fiber.Map{"error": "Invalid conversation ID"})
				continue
			}
			hub.Unsubscribe(client, conversationID)

		case "message":
			conversationID, err := uuid.Parse(frame.ConversationID)
			if err != nil {
				_ = c.WriteJSON(fiber.Map{"error": "Invalid conversation ID"})
				continue
			}
			conversation, err := conversationStore.FindByID(context.Background(), conversationID)
			if err != nil {
				_ = c.WriteJSON(fiber.Map{"error": "Conversation not found"})
				continue
			}
			if !conversation.HasParticipant(userID) {
				_ = c.WriteJSON(fiber.Map{"error": "Not a participant of this conversation"})
				continue
			}
			message, err := messageStore.Create(context.Background(), conversationID, userID, frame.Body)
			if err != nil {
				log.Printf("Failed to save message from client %s: %v", userID, err)
				_ = c.WriteJSON(fiber.Map{"error": "Failed to save message"})
				continue
			}
			hub.Publish(message)

		default:
			_ = c.WriteJSON(fiber.Map{"error": "Unknown frame type"})
		}
	}
}

func subscribeError(err error) fiber.Map {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.Map{"error": "Conversation not found"}
	}
	if errors.Is(err, websocket.ErrNotParticipant) {
		return fiber.Map{"error": "Not a participant of this conversation"}
	}
	return fiber.Map{"error": "Subscribe failed"}
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(configs.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
