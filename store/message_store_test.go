package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
)

func TestCreateValidatesBody(t *testing.T) {
	cs, ms := newTestStores(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	conv, _, _ := cs.FindOrCreateBetween(ctx, alice, bob, "L1", "Sunny room")

	var ve *ValidationError
	if _, err := ms.Create(ctx, conv.ID, alice, "   "); !errors.As(err, &ve) {
		t.Fatalf("blank body should be a validation error, got %v", err)
	}
	if _, err := ms.Create(ctx, conv.ID, alice, strings.Repeat("é", 2001)); !errors.As(err, &ve) {
		t.Fatalf("2001-rune body should be a validation error, got %v", err)
	}
	if _, err := ms.Create(ctx, conv.ID, alice, strings.Repeat("é", 2000)); err != nil {
		t.Fatalf("2000-rune body should be accepted, got %v", err)
	}
	if _, err := ms.Create(ctx, uuid.New(), alice, "hello"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown conversation should be ErrNotFound, got %v", err)
	}
}

func TestCreateUpdatesPreview(t *testing.T) {
	cs, ms := newTestStores(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	conv, _, _ := cs.FindOrCreateBetween(ctx, alice, bob, "L1", "Sunny room")

	// 250 multi-byte characters; the preview must be cut at exactly 100
	// characters without splitting any of them.
	body := strings.Repeat("é", 250)
	msg, err := ms.Create(ctx, conv.ID, bob, body)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	updated, err := cs.FindByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := utf8.RuneCountInString(updated.LastMessagePreview); got != 100 {
		t.Fatalf("preview should be 100 characters, got %d", got)
	}
	if !utf8.ValidString(updated.LastMessagePreview) {
		t.Fatal("preview must not end in a truncated multi-byte character")
	}
	if updated.LastSenderID == nil || *updated.LastSenderID != bob {
		t.Fatalf("preview sender should be %s", bob)
	}
	if updated.LastMessageAt == nil || !updated.LastMessageAt.Equal(msg.CreatedAt) {
		t.Fatal("preview timestamp should match the message")
	}

	if _, err := ms.Create(ctx, conv.ID, alice, "ok"); err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	updated, _ = cs.FindByID(ctx, conv.ID)
	if updated.LastMessagePreview != "ok" {
		t.Fatalf("short bodies should be stored untruncated, got %q", updated.LastMessagePreview)
	}
	if updated.LastSenderID == nil || *updated.LastSenderID != alice {
		t.Fatal("preview sender should follow the latest message")
	}
}

func TestGetByConversationOrdering(t *testing.T) {
	cs, ms := newTestStores(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	conv, _, _ := cs.FindOrCreateBetween(ctx, alice, bob, "L1", "Sunny room")

	var sent []uuid.UUID
	for i := 0; i < 10; i++ {
		msg, err := ms.Create(ctx, conv.ID, alice, fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
		sent = append(sent, msg.ID)
	}

	messages, err := ms.GetByConversation(ctx, conv.ID, 50)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(messages) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(messages))
	}
	for i := range messages {
		if messages[i].ID != sent[i] {
			t.Fatalf("message %d out of order", i)
		}
		if i > 0 && messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("created_at regressed at index %d", i)
		}
	}

	// The limit keeps the most recent messages and still returns them
	// oldest-first.
	tail, err := ms.GetByConversation(ctx, conv.ID, 3)
	if err != nil {
		t.Fatalf("limited fetch failed: %v", err)
	}
	if len(tail) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(tail))
	}
	for i, want := range sent[7:] {
		if tail[i].ID != want {
			t.Fatalf("limited fetch returned wrong window at index %d", i)
		}
	}
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	cs, ms := newTestStores(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	conv, _, _ := cs.FindOrCreateBetween(ctx, alice, bob, "L1", "Sunny room")

	for i := 0; i < 3; i++ {
		if _, err := ms.Create(ctx, conv.ID, bob, "ping"); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}
	if _, err := ms.Create(ctx, conv.ID, alice, "pong"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	updated, err := ms.MarkAsRead(ctx, conv.ID, alice)
	if err != nil {
		t.Fatalf("mark as read failed: %v", err)
	}
	if updated != 3 {
		t.Fatalf("expected 3 messages marked, got %d", updated)
	}

	again, err := ms.MarkAsRead(ctx, conv.ID, alice)
	if err != nil {
		t.Fatalf("second mark as read failed: %v", err)
	}
	if again != 0 {
		t.Fatalf("second call should update 0 rows, got %d", again)
	}

	messages, _ := ms.GetByConversation(ctx, conv.ID, 50)
	for _, m := range messages {
		if m.SenderID == bob && m.ReadAt == nil {
			t.Fatal("bob's messages should all be read")
		}
		if m.SenderID == alice && m.ReadAt != nil {
			t.Fatal("alice's own message must not be marked read by her")
		}
	}
}

func TestUnreadCountScopesToOwnConversations(t *testing.T) {
	cs, ms := newTestStores(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()
	dave := uuid.New()

	mine, _, _ := cs.FindOrCreateBetween(ctx, alice, bob, "L1", "Sunny room")
	other, _, _ := cs.FindOrCreateBetween(ctx, carol, dave, "L1", "Sunny room")

	if _, err := ms.Create(ctx, mine.ID, bob, "for alice"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := ms.Create(ctx, other.ID, carol, "not for alice"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	count, err := ms.UnreadCount(ctx, alice)
	if err != nil {
		t.Fatalf("unread count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("alice should have exactly 1 unread, got %d", count)
	}

	// A user with no conversations gets 0, not an error.
	stranger, err := ms.UnreadCount(ctx, uuid.New())
	if err != nil {
		t.Fatalf("unread count for stranger failed: %v", err)
	}
	if stranger != 0 {
		t.Fatalf("stranger should have 0 unread, got %d", stranger)
	}
}

func TestUnreadFlowAcrossRead(t *testing.T) {
	cs, ms := newTestStores(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	conv, _, _ := cs.FindOrCreateBetween(ctx, alice, bob, "L1", "Sunny room")

	if _, err := ms.Create(ctx, conv.ID, bob, "Is this still available?"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	count, _ := ms.UnreadCount(ctx, alice)
	if count != 1 {
		t.Fatalf("alice should have 1 unread, got %d", count)
	}
	bobCount, _ := ms.UnreadCount(ctx, bob)
	if bobCount != 0 {
		t.Fatalf("the sender should have 0 unread, got %d", bobCount)
	}

	if _, err := ms.MarkAsRead(ctx, conv.ID, alice); err != nil {
		t.Fatalf("mark as read failed: %v", err)
	}
	count, _ = ms.UnreadCount(ctx, alice)
	if count != 0 {
		t.Fatalf("alice should have 0 unread after opening, got %d", count)
	}
	bobCount, _ = ms.UnreadCount(ctx, bob)
	if bobCount != 0 {
		t.Fatalf("bob's count must be unaffected, got %d", bobCount)
	}
}

func TestDeleteOwnMessage(t *testing.T) {
	cs, ms := newTestStores(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	conv, _, _ := cs.FindOrCreateBetween(ctx, alice, bob, "L1", "Sunny room")

	msg, err := ms.Create(ctx, conv.ID, bob, "typo-ridden message")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	deleted, err := ms.DeleteOwnMessage(ctx, msg.ID, alice)
	if err != nil {
		t.Fatalf("delete attempt failed: %v", err)
	}
	if deleted {
		t.Fatal("alice must not be able to delete bob's message")
	}

	deleted, err = ms.DeleteOwnMessage(ctx, msg.ID, bob)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !deleted {
		t.Fatal("bob should be able to delete his own message")
	}

	deleted, err = ms.DeleteOwnMessage(ctx, msg.ID, bob)
	if err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
	if deleted {
		t.Fatal("deleting an already-deleted message should report false")
	}

	// The preview is a best-effort cache: deleting the latest message leaves
	// it stale rather than attempting an inline repair.
	conv, _ = cs.FindByID(ctx, conv.ID)
	if conv.LastMessagePreview != "typo-ridden message" {
		t.Fatalf("preview repair is not attempted on delete, got %q", conv.LastMessagePreview)
	}
}

func TestTruncatePreview(t *testing.T) {
	if got := TruncatePreview("short"); got != "short" {
		t.Fatalf("short bodies pass through, got %q", got)
	}
	long := strings.Repeat("日", 150)
	got := TruncatePreview(long)
	if utf8.RuneCountInString(got) != 100 {
		t.Fatalf("expected 100 runes, got %d", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation must not split a multi-byte character")
	}
}
