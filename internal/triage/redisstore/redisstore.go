// Package redisstore provides a Redis implementation of triage.Store for
// deployments that want shared, expiring decision storage without Postgres.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/lookout/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/lookout/internal/triage/redisstore")

const (
	recordPrefix = "lookout:triage:"
	ticketPrefix = "lookout:ticket:"

	// DefaultTTL applies when New is given a non-positive ttl.
	DefaultTTL = 7 * 24 * time.Hour
)

// Store keeps each record as JSON under lookout:triage:<id> and points
// lookout:ticket:<ticket id> at the latest record. Both keys share the TTL.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New pings client and returns a ready Store.
func New(ctx context.Context, client redis.UniversalClient, ttl time.Duration) (*Store, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}, nil
}

// Get retrieves a triage record by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Record, bool, error) {
	ctx, span := startSpan(ctx, "redisstore.Get", "GET")
	defer span.End()

	r, err := s.load(ctx, id)
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	return r, r != nil, nil
}

// GetByTicket retrieves the most recent triage record for a ticket ID.
func (s *Store) GetByTicket(ctx context.Context, ticketID string) (*triage.Record, bool, error) {
	ctx, span := startSpan(ctx, "redisstore.GetByTicket", "GET")
	defer span.End()

	id, err := s.client.Get(ctx, ticketPrefix+ticketID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		err = fmt.Errorf("get ticket index: %w", err)
		fail(span, err)
		return nil, false, err
	}

	r, err := s.load(ctx, id)
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	return r, r != nil, nil
}

// Put writes the record and moves the ticket index to it in one transaction.
func (s *Store) Put(ctx context.Context, r *triage.Record) error {
	ctx, span := startSpan(ctx, "redisstore.Put", "SET")
	defer span.End()

	data, err := json.Marshal(r)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, recordPrefix+r.ID, data, s.ttl)
		p.Set(ctx, ticketPrefix+r.Decision.TicketID, r.ID, s.ttl)
		return nil
	})
	if err != nil {
		fail(span, err)
		return fmt.Errorf("put triage record: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, id string) (*triage.Record, error) {
	data, err := s.client.Get(ctx, recordPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	var r triage.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", id, err)
	}
	return &r, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
