package client

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	ws "github.com/Kyria-Zaire/Roomshare-sub000/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Socket is the process-scoped realtime connection. One per application
// shell, created explicitly and injected into each Thread — never an ambient
// global. Close tears the connection and every routed handler down.
type Socket struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[uuid.UUID]func(ws.MessageEvent)
	closed   bool
	done     chan struct{}
}

type socketFrame struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// DialSocket connects, authenticates with the first-frame token handshake and
// starts routing pushes to subscribed conversation handlers.
func DialSocket(ctx context.Context, url, token string) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	if err := conn.WriteJSON(socketFrame{Type: "auth", Token: token}); err != nil {
		conn.Close()
		return nil, err
	}

	s := &Socket{
		conn:     conn,
		handlers: make(map[uuid.UUID]func(ws.MessageEvent)),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Subscribe requests the conversation's channel and routes its pushes to
// onEvent. The returned function unsubscribes; calling it twice is harmless.
func (s *Socket) Subscribe(conversationID uuid.UUID, onEvent func(ws.MessageEvent)) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSocketClosed
	}
	s.handlers[conversationID] = onEvent
	s.mu.Unlock()

	if err := s.writeFrame(socketFrame{Type: "subscribe", ConversationID: conversationID.String()}); err != nil {
		s.mu.Lock()
		delete(s.handlers, conversationID)
		s.mu.Unlock()
		return nil, err
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, conversationID)
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				_ = s.writeFrame(socketFrame{Type: "unsubscribe", ConversationID: conversationID.String()})
			}
		})
	}
	return unsubscribe, nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.handlers = make(map[uuid.UUID]func(ws.MessageEvent))
	s.mu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}

func (s *Socket) writeFrame(frame socketFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *Socket) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			wasClosed := s.closed
			s.closed = true
			s.handlers = make(map[uuid.UUID]func(ws.MessageEvent))
			s.mu.Unlock()
			if !wasClosed {
				log.Printf("Realtime connection lost: %v", err)
			}
			return
		}

		var event ws.MessageEvent
		if err := json.Unmarshal(data, &event); err != nil || event.Type != "message.new" {
			continue
		}

		s.mu.Lock()
		handler := s.handlers[event.ConversationID]
		s.mu.Unlock()
		if handler != nil {
			handler(event)
		}
	}
}
