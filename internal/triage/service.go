package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lookout/internal/narrative"
)

// Notifier delivers escalated decisions to humans.
type Notifier interface {
	Send(ctx context.Context, rec *Record) error
}

// Service is the business boundary for triage operations.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Submit triages t synchronously, persists the record under a new ID and, if
// the decision escalates, notifies asynchronously.
func (s *Service) Submit(ctx context.Context, t Ticket) (*Record, error) {
	start := time.Now()
	d, err := s.engine.Triage(ctx, t)
	if err != nil {
		s.metrics.submit(resultLabel(err))
		return nil, err
	}
	return s.persist(ctx, t, d, time.Since(start))
}

// SubmitBatch triages tickets through Engine.TriageBatch and persists every
// successful slot. Item i always belongs to tickets[i].
func (s *Service) SubmitBatch(ctx context.Context, tickets []Ticket) []BatchItem {
	start := time.Now()
	results := s.engine.TriageBatch(ctx, tickets)
	dur := time.Since(start)

	items := make([]BatchItem, len(results))
	for i, r := range results {
		items[i].TicketID = r.TicketID
		if r.Err != nil {
			s.metrics.submit(resultLabel(r.Err))
			items[i].Err = r.Err
			continue
		}
		items[i].Record, items[i].Err = s.persist(ctx, tickets[i], r.Decision, dur)
	}
	return items
}

func (s *Service) persist(ctx context.Context, t Ticket, d *Decision, dur time.Duration) (*Record, error) {
	redacted, _ := s.engine.Redact(t)
	if redacted.ReportedAt.IsZero() {
		redacted.ReportedAt = time.Now().UTC()
	}
	if redacted.Source == "" {
		redacted.Source = "api"
	}

	rec := &Record{
		ID:        ulid.Make().String(),
		Ticket:    redacted,
		Decision:  *d,
		CreatedAt: time.Now().UTC(),
		Duration:  dur.Seconds(),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		s.metrics.submit("store_error")
		return nil, fmt.Errorf("persist triage record: %w", err)
	}
	s.metrics.submit("accepted")

	if d.Escalate && s.notifier != nil {
		// hand the notifier its own copy; the caller keeps rec
		cp := *rec
		go s.notify(context.WithoutCancel(ctx), &cp)
	}
	return rec, nil
}

func (s *Service) notify(ctx context.Context, rec *Record) {
	if err := s.notifier.Send(ctx, rec); err != nil {
		s.metrics.notify("error")
		s.logger.Error(ctx, err, "escalation notification failed", "triage_id", rec.ID, "ticket_id", rec.Decision.TicketID)
		return
	}
	s.metrics.notify("sent")
}

// Get retrieves a triage record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, bool, error) {
	return s.store.Get(ctx, id)
}

// GetByTicket retrieves the most recent triage record for a ticket ID.
func (s *Service) GetByTicket(ctx context.Context, ticketID string) (*Record, bool, error) {
	return s.store.GetByTicket(ctx, ticketID)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, narrative.ErrGeneration):
		return "generation_error"
	default:
		return "error"
	}
}
