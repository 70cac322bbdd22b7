package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Kyria-Zaire/Roomshare-sub000/models"
	"github.com/google/uuid"
)

// ErrNotParticipant denies a subscribe request from a user who does not
// belong to the conversation.
var ErrNotParticipant = errors.New("not a participant of this conversation")

// ConnLike is the subset of the websocket connection the hub needs, so fan-out
// can be tested without a real socket.
type ConnLike interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConversationFinder resolves a conversation so subscribe requests can be
// authorized against its participants.
type ConversationFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
}

const textMessage = 1

type Client struct {
	UserID uuid.UUID
	Conn   ConnLike
	Send   chan []byte
}

// MessageEvent is the push payload broadcast on a conversation's channel.
type MessageEvent struct {
	Type           string    `json:"type"`
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Hub fans newly created messages out to the subscribers of each
// conversation's channel. One logical channel per conversation; only the two
// participants may subscribe. Delivery is best-effort: slow or gone clients
// are skipped, the polling fallback heals what they miss.
type Hub struct {
	conversations ConversationFinder

	mu          sync.RWMutex
	rooms       map[uuid.UUID]map[*Client]bool
	clientRooms map[*Client]map[uuid.UUID]bool

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *models.Message
}

func NewHub(conversations ConversationFinder) *Hub {
	return &Hub{
		conversations: conversations,
		rooms:         make(map[uuid.UUID]map[*Client]bool),
		clientRooms:   make(map[*Client]map[uuid.UUID]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Broadcast:     make(chan *models.Message, 64),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			log.Printf("Client registered: %s", client.UserID)
			h.mu.Lock()
			if _, ok := h.clientRooms[client]; !ok {
				h.clientRooms[client] = make(map[uuid.UUID]bool)
			}
			h.mu.Unlock()

		case client := <-h.Unregister:
			log.Printf("Client unregistered: %s", client.UserID)
			h.mu.Lock()
			for conversationID := range h.clientRooms[client] {
				delete(h.rooms[conversationID], client)
				if len(h.rooms[conversationID]) == 0 {
					delete(h.rooms, conversationID)
				}
			}
			delete(h.clientRooms, client)
			h.mu.Unlock()
			close(client.Send)

		case message := <-h.Broadcast:
			h.deliver(message)
		}
	}
}

// Subscribe admits the client to a conversation's channel after verifying it
// is one of the two participants. Returns models/store errors unchanged so
// the caller can distinguish not-found from forbidden.
func (h *Hub) Subscribe(ctx context.Context, client *Client, conversationID uuid.UUID) error {
	conv, err := h.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(client.UserID) {
		return ErrNotParticipant
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]bool)
	}
	h.rooms[conversationID][client] = true
	if _, ok := h.clientRooms[client]; !ok {
		h.clientRooms[client] = make(map[uuid.UUID]bool)
	}
	h.clientRooms[client][conversationID] = true
	return nil
}

func (h *Hub) Unsubscribe(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[conversationID], client)
	if len(h.rooms[conversationID]) == 0 {
		delete(h.rooms, conversationID)
	}
	delete(h.clientRooms[client], conversationID)
}

// Publish queues a freshly persisted message for broadcast. Fire-and-forget:
// a full queue drops the event rather than stalling or failing the write that
// triggered it.
func (h *Hub) Publish(message *models.Message) {
	select {
	case h.Broadcast <- message:
	default:
		log.Printf("Broadcast queue full, dropping push for message %s", message.ID)
	}
}

func (h *Hub) deliver(message *models.Message) {
	event := MessageEvent{
		Type:           "message.new",
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Body:           message.Body,
		CreatedAt:      message.CreatedAt,
	}
	data, err := json.Marshal(&event)
	if err != nil {
		log.Printf("Error encoding push event for message %s: %v", message.ID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[message.ConversationID] {
		if client.UserID == message.SenderID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Printf("Send buffer full for client %s, skipping push", client.UserID)
		}
	}
}

// WritePump drains the client's send queue onto the wire. Runs in its own
// goroutine per connection; exits when the hub closes the channel on
// unregister.
func (c *Client) WritePump() {
	for data := range c.Send {
		if err := c.Conn.WriteMessage(textMessage, data); err != nil {
			log.Printf("Error sending push to client %s: %v", c.UserID, err)
			c.Conn.Close()
			return
		}
	}
}
