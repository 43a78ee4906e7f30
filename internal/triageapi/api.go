// Package triageapi exposes triage.Service over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/lookout/internal/narrative"
	"github.com/linnemanlabs/lookout/internal/triage"
)

// DefaultMaxBatch bounds POST /triage/batch when New is given zero.
const DefaultMaxBatch = 100

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Submit(ctx context.Context, t triage.Ticket) (*triage.Record, error)
	SubmitBatch(ctx context.Context, tickets []triage.Ticket) []triage.BatchItem
	Get(ctx context.Context, id string) (*triage.Record, bool, error)
	GetByTicket(ctx context.Context, ticketID string) (*triage.Record, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      TriageService
	maxBatch int
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, maxBatch int) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &API{
		logger:   logger,
		svc:      svc,
		maxBatch: maxBatch,
	}
}

// RegisterRoutes attaches API endpoints to the router. Extra middleware (auth)
// applies to the API group only.
func (a *API) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)
		r.Post("/triage", a.handleTriage)
		r.Post("/triage/batch", a.handleTriageBatch)
		r.Get("/triage/{id}", a.handleGetTriage)
		r.Get("/tickets/{ticketID}/triage", a.handleGetTicketTriage)
	})
}

func (a *API) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("lookout.triage.id", id))

	rec, ok, err := a.svc.Get(r.Context(), id)
	a.writeLookup(w, r, rec, ok, err, "id", id)
}

func (a *API) handleGetTicketTriage(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("lookout.ticket.id", ticketID))

	rec, ok, err := a.svc.GetByTicket(r.Context(), ticketID)
	a.writeLookup(w, r, rec, ok, err, "ticket_id", ticketID)
}

func (a *API) writeLookup(w http.ResponseWriter, r *http.Request, rec *triage.Record, ok bool, err error, key, val string) {
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get triage record", key, val)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("lookout.severity", string(rec.Decision.Severity)),
	)
	writeJSON(w, http.StatusOK, rec)
}

// errorStatus maps service errors onto HTTP status codes and a body that is
// safe to return to clients.
func errorStatus(err error) (int, string) {
	var ve *triage.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, narrative.ErrGeneration):
		return http.StatusBadGateway, "narrative generation failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
