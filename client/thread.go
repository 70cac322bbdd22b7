package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Kyria-Zaire/Roomshare-sub000/models"
	ws "github.com/Kyria-Zaire/Roomshare-sub000/websocket"
	"github.com/google/uuid"
)

// ErrSocketClosed is returned when subscribing on a torn-down connection.
var ErrSocketClosed = errors.New("realtime connection is closed")

// ErrThreadClosed rejects operations on a closed thread view.
var ErrThreadClosed = errors.New("thread is closed")

const defaultPollInterval = 3 * time.Second

// ThreadState tracks the lifecycle of an open conversation view.
type ThreadState int

const (
	ThreadLoading ThreadState = iota
	ThreadReady
	ThreadSending
	ThreadClosed
)

// ThreadAPI is what the thread needs from the HTTP surface. *API satisfies
// it; tests substitute a fake.
type ThreadAPI interface {
	FetchThread(ctx context.Context, conversationID uuid.UUID) (*ThreadSnapshot, error)
	SendMessage(ctx context.Context, conversationID uuid.UUID, body string) (*models.Message, error)
}

// Subscriber is the realtime half; *Socket satisfies it. A nil Subscriber
// (or a failing Subscribe) leaves the thread in polling-only mode.
type Subscriber interface {
	Subscribe(conversationID uuid.UUID, onEvent func(ws.MessageEvent)) (func(), error)
}

// DisplayMessage is one entry of the rendered message list. Optimistic
// entries carry a local key and no server id until a poll replaces them with
// the server's copy; the local key is only a list key, never used for dedup.
type DisplayMessage struct {
	ID        uuid.UUID `json:"id"`
	LocalKey  string    `json:"local_key"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"pending"`
}

// Thread merges optimistic local sends, pushed events and periodic poll
// results into one consistent message list for a single open conversation.
type Thread struct {
	api            ThreadAPI
	subscriber     Subscriber
	conversationID uuid.UUID
	userID         uuid.UUID
	pollInterval   time.Duration

	// OnUpdate receives the full list after every change. OnSendFailed gets
	// the rejected draft back so the UI can restore the input.
	OnUpdate     func([]DisplayMessage)
	OnSendFailed func(draft string, err error)

	mu          sync.Mutex
	state       ThreadState
	messages    []DisplayMessage
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewThread(api ThreadAPI, subscriber Subscriber, conversationID, userID uuid.UUID) *Thread {
	return &Thread{
		api:            api,
		subscriber:     subscriber,
		conversationID: conversationID,
		userID:         userID,
		pollInterval:   defaultPollInterval,
		state:          ThreadLoading,
	}
}

// Open loads the thread (which also marks it read server-side), subscribes to
// the conversation channel when a realtime connection is available and starts
// the polling fallback. The view is ready once Open returns nil.
func (t *Thread) Open(ctx context.Context) error {
	snapshot, err := t.api.FetchThread(ctx, t.conversationID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.state == ThreadClosed {
		t.mu.Unlock()
		return ErrThreadClosed
	}
	t.messages = fromServerMessages(snapshot.Messages)
	t.state = ThreadReady
	t.mu.Unlock()
	t.notify()

	if t.subscriber != nil {
		unsubscribe, err := t.subscriber.Subscribe(t.conversationID, t.handlePush)
		if err != nil {
			// Realtime unavailable is not an error the user sees; the poll
			// loop below covers delivery on its own.
			log.Printf("Realtime subscribe failed for conversation %s, polling only: %v", t.conversationID, err)
		} else {
			t.mu.Lock()
			t.unsubscribe = unsubscribe
			t.mu.Unlock()
		}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.pollLoop(pollCtx)
	return nil
}

// Send appends an optimistic message immediately and issues the create
// request in the background. On failure the optimistic entry is removed and
// the draft handed back through OnSendFailed.
func (t *Thread) Send(body string) error {
	t.mu.Lock()
	if t.state != ThreadReady {
		t.mu.Unlock()
		return ErrThreadClosed
	}
	localKey := "local-" + uuid.NewString()
	t.messages = append(t.messages, DisplayMessage{
		LocalKey:  localKey,
		SenderID:  t.userID,
		Body:      body,
		CreatedAt: time.Now(),
		Pending:   true,
	})
	t.mu.Unlock()
	t.notify()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := t.api.SendMessage(ctx, t.conversationID, body)
		if err == nil {
			// The optimistic entry stays displayed under its local key; the
			// next poll swaps in the server's copy. Only the pending flag is
			// cleared here.
			t.mu.Lock()
			for i := range t.messages {
				if t.messages[i].LocalKey == localKey {
					t.messages[i].Pending = false
					break
				}
			}
			t.mu.Unlock()
			t.notify()
			return
		}

		t.mu.Lock()
		for i, m := range t.messages {
			if m.LocalKey == localKey {
				t.messages = append(t.messages[:i], t.messages[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
		t.notify()
		if t.OnSendFailed != nil {
			t.OnSendFailed(body, err)
		}
	}()
	return nil
}

// Close tears down the poll timer and the channel subscription. Both must go:
// leaking either would leave handlers from this conversation firing into the
// next one the user opens.
func (t *Thread) Close() {
	t.mu.Lock()
	if t.state == ThreadClosed {
		t.mu.Unlock()
		return
	}
	t.state = ThreadClosed
	unsubscribe := t.unsubscribe
	cancel := t.cancel
	t.unsubscribe = nil
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	t.wg.Wait()
}

// Messages returns a copy of the current display list.
func (t *Thread) Messages() []DisplayMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DisplayMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// State reports ThreadSending while any optimistic message is still awaiting
// confirmation; otherwise the lifecycle state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == ThreadReady {
		for _, m := range t.messages {
			if m.Pending {
				return ThreadSending
			}
		}
	}
	return t.state
}

// handlePush appends a pushed message unless it echoes one of the user's own
// sends (already shown optimistically) or is already present (dedup by server
// id, covering the push-after-poll overlap).
func (t *Thread) handlePush(event ws.MessageEvent) {
	if event.SenderID == t.userID {
		return
	}

	t.mu.Lock()
	if t.state != ThreadReady {
		t.mu.Unlock()
		return
	}
	for _, m := range t.messages {
		if m.ID == event.ID {
			t.mu.Unlock()
			return
		}
	}
	t.messages = append(t.messages, DisplayMessage{
		ID:        event.ID,
		LocalKey:  event.ID.String(),
		SenderID:  event.SenderID,
		Body:      event.Body,
		CreatedAt: event.CreatedAt,
	})
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) pollLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetchCtx, cancel := context.WithTimeout(ctx, t.pollInterval)
			snapshot, err := t.api.FetchThread(fetchCtx, t.conversationID)
			cancel()
			if err != nil {
				// Silent by design; the next tick retries.
				log.Printf("Poll failed for conversation %s: %v", t.conversationID, err)
				continue
			}
			t.reconcilePoll(snapshot.Messages)
		}
	}
}

// reconcilePoll replaces local state with the server's only when the server
// has at least as many messages AND the tails differ. A just-sent optimistic
// message the server has not persisted yet keeps the local list longer, so it
// is never discarded by a slow round-trip.
func (t *Thread) reconcilePoll(serverMessages []models.Message) {
	t.mu.Lock()
	if t.state != ThreadReady {
		t.mu.Unlock()
		return
	}
	if len(serverMessages) < len(t.messages) {
		t.mu.Unlock()
		return
	}
	if tailsMatch(t.messages, serverMessages) {
		t.mu.Unlock()
		return
	}
	t.messages = fromServerMessages(serverMessages)
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) notify() {
	if t.OnUpdate == nil {
		return
	}
	t.OnUpdate(t.Messages())
}

// tailsMatch compares list tails by server-assigned id. An optimistic local
// tail has no server id and therefore never matches.
func tailsMatch(local []DisplayMessage, server []models.Message) bool {
	if len(local) == 0 && len(server) == 0 {
		return true
	}
	if len(local) == 0 || len(server) == 0 {
		return false
	}
	localTail := local[len(local)-1]
	serverTail := server[len(server)-1]
	return !localTail.Pending && localTail.ID == serverTail.ID
}

func fromServerMessages(messages []models.Message) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, DisplayMessage{
			ID:        m.ID,
			LocalKey:  m.ID.String(),
			SenderID:  m.SenderID,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}
