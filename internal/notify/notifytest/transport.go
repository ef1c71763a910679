// Package notifytest provides an in-memory chat transport for tests.
package notifytest

import (
	"context"
	"errors"
	"sync"

	"github.com/odyssey-erp/expenseflow/internal/notify"
)

// ErrUnavailable is returned for chats marked as failing.
var ErrUnavailable = errors.New("notifytest: chat unavailable")

// Message is a message that is currently visible in a chat.
type Message struct {
	ChatID    int64
	MessageID int64
	Text      string
	Keyboard  notify.Keyboard
}

// Transport records sends and deletes and hands out increasing message ids.
type Transport struct {
	mu         sync.Mutex
	nextID     int64
	live       map[int64]map[int64]Message
	sent       []Message
	deleted    []notify.Delivery
	failSend   map[int64]bool
	failDelete map[int64]bool
}

// NewTransport constructs an empty transport.
func NewTransport() *Transport {
	return &Transport{
		live:       make(map[int64]map[int64]Message),
		failSend:   make(map[int64]bool),
		failDelete: make(map[int64]bool),
	}
}

// FailSend makes every send to chatID fail.
func (t *Transport) FailSend(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failSend[chatID] = true
}

// FailDelete makes every delete in chatID fail.
func (t *Transport) FailDelete(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failDelete[chatID] = true
}

func (t *Transport) Send(ctx context.Context, chatID int64, text string, keyboard notify.Keyboard) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSend[chatID] {
		return 0, ErrUnavailable
	}
	t.nextID++
	msg := Message{ChatID: chatID, MessageID: t.nextID, Text: text, Keyboard: keyboard}
	if t.live[chatID] == nil {
		t.live[chatID] = make(map[int64]Message)
	}
	t.live[chatID][msg.MessageID] = msg
	t.sent = append(t.sent, msg)
	return msg.MessageID, nil
}

func (t *Transport) Delete(ctx context.Context, chatID, messageID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failDelete[chatID] {
		return ErrUnavailable
	}
	delete(t.live[chatID], messageID)
	t.deleted = append(t.deleted, notify.Delivery{ChatID: chatID, MessageID: messageID})
	return nil
}

// Sent returns every successful send in order.
func (t *Transport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}

// SentTo returns the successful sends addressed to chatID.
func (t *Transport) SentTo(chatID int64) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Message
	for _, msg := range t.sent {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

// Live returns the messages still visible in chatID.
func (t *Transport) Live(chatID int64) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, 0, len(t.live[chatID]))
	for _, msg := range t.live[chatID] {
		out = append(out, msg)
	}
	return out
}

// Deleted returns every successful delete in order.
func (t *Transport) Deleted() []notify.Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]notify.Delivery(nil), t.deleted...)
}
