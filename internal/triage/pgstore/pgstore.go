// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/lookout/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/lookout/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage records in PostgreSQL. The ticket and decision are
// kept as JSONB; the columns used for lookups and reporting are denormalized.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const recordColumns = `id, ticket, decision, created_at, duration_s`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Get retrieves a triage record by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Record, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE id = $1`
	r, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	return r, r != nil, nil
}

// GetByTicket retrieves the most recent triage record for a ticket ID.
func (s *Store) GetByTicket(ctx context.Context, ticketID string) (*triage.Record, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetByTicket", "SELECT")
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE ticket_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	r, err := scanRecord(s.pool.QueryRow(ctx, query, ticketID))
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	return r, r != nil, nil
}

// Put inserts or replaces a triage record.
func (s *Store) Put(ctx context.Context, r *triage.Record) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()

	ticketJSON, err := json.Marshal(r.Ticket)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("marshal ticket: %w", err)
	}
	decisionJSON, err := json.Marshal(r.Decision)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("marshal decision: %w", err)
	}

	query := `INSERT INTO triage_records (
		id, ticket_id, severity, confidence, escalate, narrative_source, prompt_version,
		ticket, decision, created_at, duration_s
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (id) DO UPDATE SET
		ticket_id        = EXCLUDED.ticket_id,
		severity         = EXCLUDED.severity,
		confidence       = EXCLUDED.confidence,
		escalate         = EXCLUDED.escalate,
		narrative_source = EXCLUDED.narrative_source,
		prompt_version   = EXCLUDED.prompt_version,
		ticket           = EXCLUDED.ticket,
		decision         = EXCLUDED.decision,
		duration_s       = EXCLUDED.duration_s`

	d := &r.Decision
	_, err = s.pool.Exec(ctx, query,
		r.ID, d.TicketID, string(d.Severity), d.Confidence, d.Escalate, d.NarrativeSource, d.PromptVersion,
		ticketJSON, decisionJSON, r.CreatedAt, r.Duration,
	)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("upsert triage record: %w", err)
	}
	return nil
}

// scanRecord scans a single row into a triage.Record.
// Returns (nil, nil) when no row is found.
func scanRecord(row pgx.Row) (*triage.Record, error) {
	var (
		r            triage.Record
		ticketJSON   []byte
		decisionJSON []byte
	)
	if err := row.Scan(&r.ID, &ticketJSON, &decisionJSON, &r.CreatedAt, &r.Duration); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	if err := json.Unmarshal(ticketJSON, &r.Ticket); err != nil {
		return nil, fmt.Errorf("unmarshal ticket: %w", err)
	}
	if err := json.Unmarshal(decisionJSON, &r.Decision); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &r, nil
}
