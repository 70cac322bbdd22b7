package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Kyria-Zaire/Roomshare-sub000/models"
	"github.com/google/uuid"
)

// API is the typed HTTP client for the messaging surface. Every call carries
// a bounded timeout through its context; the unread count additionally fails
// soft, returning the last value it managed to fetch.
type API struct {
	baseURL string
	token   string
	http    *http.Client

	mu              sync.Mutex
	lastUnread      int64
	lastUnreadKnown bool
}

// ThreadSnapshot is the server's view of one conversation: the record plus
// the most recent messages in chronological order. Fetching it marks the
// thread as read for the requesting user.
type ThreadSnapshot struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *API) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := a.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &conversations)
	return conversations, err
}

func (a *API) FetchThread(ctx context.Context, conversationID uuid.UUID) (*ThreadSnapshot, error) {
	var snapshot ThreadSnapshot
	err := a.do(ctx, http.MethodGet, "/api/v1/conversations/"+conversationID.String(), nil, &snapshot)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (a *API) CreateConversation(ctx context.Context, recipientID uuid.UUID, roomID, roomTitle, initialMessage string) (*models.Conversation, error) {
	body := map[string]string{
		"recipient_id":    recipientID.String(),
		"room_id":         roomID,
		"room_title":      roomTitle,
		"initial_message": initialMessage,
	}
	var conversation models.Conversation
	if err := a.do(ctx, http.MethodPost, "/api/v1/conversations", body, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (a *API) SendMessage(ctx context.Context, conversationID uuid.UUID, body string) (*models.Message, error) {
	payload := map[string]string{
		"conversation_id": conversationID.String(),
		"body":            body,
	}
	var message models.Message
	if err := a.do(ctx, http.MethodPost, "/api/v1/messages", payload, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (a *API) DeleteMessage(ctx context.Context, messageID uuid.UUID) (bool, error) {
	var result struct {
		Deleted bool `json:"deleted"`
	}
	if err := a.do(ctx, http.MethodDelete, "/api/v1/messages/"+messageID.String(), nil, &result); err != nil {
		return false, err
	}
	return result.Deleted, nil
}

// UnreadCount never surfaces an error to the caller: a timed-out or failed
// fetch logs and returns the last known value so the badge in the UI keeps
// rendering something sensible.
func (a *API) UnreadCount(ctx context.Context) int64 {
	var result struct {
		UnreadCount int64 `json:"unread_count"`
	}
	err := a.do(ctx, http.MethodGet, "/api/v1/conversations/unread/count", nil, &result)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		log.Printf("Unread count fetch degraded: %v", err)
		if a.lastUnreadKnown {
			return a.lastUnread
		}
		return 0
	}
	a.lastUnread = result.UnreadCount
	a.lastUnreadKnown = true
	return result.UnreadCount
}

func (a *API) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
