// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/lookout/internal/triage"
)

// Store holds triage records in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*triage.Record // record ID -> record
	byTicket map[string]string         // ticket ID -> latest record ID
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		records:  make(map[string]*triage.Record),
		byTicket: make(map[string]string),
	}
}

// Get retrieves a triage record by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	return clone(r), true, nil
}

// GetByTicket retrieves the most recently stored record for a ticket ID.
// Returns a copy.
func (s *Store) GetByTicket(_ context.Context, ticketID string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTicket[ticketID]
	if !ok {
		return nil, false, nil
	}
	return clone(s.records[id]), true, nil
}

// Put stores a copy of the triage record.
func (s *Store) Put(_ context.Context, r *triage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = clone(r)
	s.byTicket[r.Decision.TicketID] = r.ID
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// clone copies r deeply enough that callers cannot alias stored slices.
func clone(r *triage.Record) *triage.Record {
	cp := *r
	cp.Ticket.Tags = slices.Clone(r.Ticket.Tags)
	cp.Decision.Actions = slices.Clone(r.Decision.Actions)
	cp.Decision.PIICategories = slices.Clone(r.Decision.PIICategories)
	cp.Decision.References = slices.Clone(r.Decision.References)
	cp.Decision.KnowledgeRefs = slices.Clone(r.Decision.KnowledgeRefs)
	cp.Decision.HistoryRefs = slices.Clone(r.Decision.HistoryRefs)
	return &cp
}
