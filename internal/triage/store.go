package triage

import "context"

// Store is the persistence interface for triage records. Implementations
// return copies; callers may mutate what they get back.
type Store interface {
	Get(ctx context.Context, id string) (*Record, bool, error)
	GetByTicket(ctx context.Context, ticketID string) (*Record, bool, error)
	Put(ctx context.Context, rec *Record) error
}
