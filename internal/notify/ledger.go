package notify

import (
	"context"
	"sync"

	"github.com/odyssey-erp/expenseflow/internal/roles"
)

// Delivery is one tracked outbound message.
type Delivery struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// Ledger tracks which messages currently represent a record for each role.
type Ledger interface {
	Get(ctx context.Context, recordID int64, role roles.Role) ([]Delivery, error)
	// Put replaces the tracked set. An empty set removes the entry.
	Put(ctx context.Context, recordID int64, role roles.Role, deliveries []Delivery) error
	// Purge drops the entries of every role for the record.
	Purge(ctx context.Context, recordID int64) error
}

// MemoryLedger keeps entries in process memory.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[int64]map[roles.Role][]Delivery
}

// NewMemoryLedger constructs an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[int64]map[roles.Role][]Delivery)}
}

func (l *MemoryLedger) Get(ctx context.Context, recordID int64, role roles.Role) ([]Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Delivery(nil), l.entries[recordID][role]...), nil
}

func (l *MemoryLedger) Put(ctx context.Context, recordID int64, role roles.Role, deliveries []Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(deliveries) == 0 {
		delete(l.entries[recordID], role)
		if len(l.entries[recordID]) == 0 {
			delete(l.entries, recordID)
		}
		return nil
	}
	byRole, ok := l.entries[recordID]
	if !ok {
		byRole = make(map[roles.Role][]Delivery)
		l.entries[recordID] = byRole
	}
	byRole[role] = append([]Delivery(nil), deliveries...)
	return nil
}

func (l *MemoryLedger) Purge(ctx context.Context, recordID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, recordID)
	return nil
}

// Len reports how many records have tracked entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
