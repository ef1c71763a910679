// Package expensetest provides an in-memory record store for tests.
package expensetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/expenseflow/internal/expense"
)

// Store keeps records in memory and honours patch expectations like the
// Postgres repository does.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]expense.Record
	history map[int64][]expense.Record
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{records: make(map[int64]expense.Record), history: make(map[int64][]expense.Record)}
}

func (s *Store) Insert(_ context.Context, rec expense.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	s.records[rec.ID] = rec
	s.history[rec.ID] = []expense.Record{rec}
	return rec.ID, nil
}

func (s *Store) Get(_ context.Context, id int64) (expense.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return expense.Record{}, expense.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Update(_ context.Context, id int64, patch expense.Patch) (expense.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return expense.Record{}, expense.ErrNotFound
	}
	if !patch.Matches(rec) {
		return expense.Record{}, expense.ErrConcurrentUpdate
	}
	rec = patch.Apply(rec)
	rec.UpdatedAt = time.Now()
	s.records[id] = rec
	s.history[id] = append(s.history[id], rec)
	return rec, nil
}

func (s *Store) ListUnfinalized(_ context.Context) ([]expense.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]expense.Record, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.Terminal() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Statuses returns every status the record went through, oldest first.
func (s *Store) Statuses(id int64) []expense.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]expense.Status, 0, len(s.history[id]))
	for _, rec := range s.history[id] {
		out = append(out, rec.Status)
	}
	return out
}

// Received returns approvals_received after each write, oldest first.
func (s *Store) Received(id int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.history[id]))
	for _, rec := range s.history[id] {
		out = append(out, rec.ApprovalsReceived)
	}
	return out
}
