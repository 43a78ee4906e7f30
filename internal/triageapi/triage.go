package triageapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/lookout/internal/triage"
)

type batchRequest struct {
	Tickets []triage.Ticket `json:"tickets"`
}

type batchItem struct {
	TicketID string         `json:"ticket_id"`
	Record   *triage.Record `json:"record,omitempty"`
	Error    string         `json:"error,omitempty"`
	Status   int            `json:"status"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
	Failed  int         `json:"failed"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	var t triage.Ticket
	if !decodeBody(w, r, &t) {
		return
	}

	rec, err := a.svc.Submit(r.Context(), t)
	if err != nil {
		status, msg := errorStatus(err)
		if status >= http.StatusInternalServerError {
			a.logger.Error(r.Context(), err, "triage failed", "ticket_id", t.ID)
		}
		writeError(w, status, msg)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("lookout.triage.id", rec.ID),
		attribute.String("lookout.severity", string(rec.Decision.Severity)),
	)
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleTriageBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Tickets) > a.maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "batch too large")
		return
	}

	items := a.svc.SubmitBatch(r.Context(), req.Tickets)

	resp := batchResponse{Results: make([]batchItem, len(items))}
	for i, it := range items {
		out := batchItem{TicketID: it.TicketID, Record: it.Record, Status: http.StatusOK}
		if it.Err != nil {
			out.Status, out.Error = errorStatus(it.Err)
			if out.Status >= http.StatusInternalServerError {
				a.logger.Error(r.Context(), it.Err, "batch triage item failed", "ticket_id", it.TicketID, "index", i)
			}
			resp.Failed++
		}
		resp.Results[i] = out
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.Int("lookout.batch.size", len(items)),
		attribute.Int("lookout.batch.failed", resp.Failed),
	)
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads a JSON body into v, answering 413 when the body limit was
// hit and 400 for anything else.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid payload")
	return false
}
