package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lookout/internal/narrative"
	"github.com/linnemanlabs/lookout/internal/severity"
	"github.com/linnemanlabs/lookout/internal/triage"
	"github.com/linnemanlabs/lookout/internal/triage/memstore"
)

func newTestService(t *testing.T, cfg triage.EngineConfig) (*triage.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	cfg.RedactPII = true
	engine := triage.NewEngine(cfg, log.Nop(), triage.EngineHooks{})
	return triage.NewService(store, engine, log.Nop(), nil, nil), store
}

func newTestRouter(t *testing.T, maxBatch int) (chi.Router, *memstore.Store) {
	t.Helper()
	svc, store := newTestService(t, triage.EngineConfig{})
	r := chi.NewRouter()
	New(nil, svc, maxBatch).RegisterRoutes(r)
	return r, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

//  New / constructor

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, triage.EngineConfig{})
	api := New(nil, svc, 0)
	if api.logger == nil {
		t.Fatal("New(nil, ...) left logger nil; expected Nop logger")
	}
	if api.maxBatch != DefaultMaxBatch {
		t.Errorf("maxBatch = %d, want %d", api.maxBatch, DefaultMaxBatch)
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil, 0)
}

// Routing

func TestRegisterRoutes_Methods(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, 0)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET triage collection", http.MethodGet, "/api/v1/triage", http.StatusMethodNotAllowed},
		{"PUT triage", http.MethodPut, "/api/v1/triage", http.StatusMethodNotAllowed},
		{"GET batch", http.MethodGet, "/api/v1/triage/batch", http.StatusNotFound},
		{"POST record", http.MethodPost, "/api/v1/triage/01H5K3ABCDEFGHJKMNPQRS", http.StatusMethodNotAllowed},
		{"DELETE record", http.MethodDelete, "/api/v1/triage/123", http.StatusMethodNotAllowed},
		{"unknown", http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{"root", http.MethodGet, "/", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, r, tt.method, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_Middleware(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, triage.EngineConfig{})
	r := chi.NewRouter()
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	New(nil, svc, 0).RegisterRoutes(r, deny)

	if rec := do(t, r, http.MethodPost, "/api/v1/triage", `{"id":"T-1"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// Single ticket

func TestHandleTriage(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(t, 0)

	rec := do(t, r, http.MethodPost, "/api/v1/triage",
		`{"id":"T-1","title":"Primary database down","description":"page me at 555-123-4567","tags":["db"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got triage.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID == "" {
		t.Error("expected record ID")
	}
	if got.Decision.Severity != severity.P0 {
		t.Errorf("severity = %s, want P0", got.Decision.Severity)
	}
	if !got.Decision.RedactionApplied {
		t.Error("expected redaction")
	}
	if strings.Contains(rec.Body.String(), "555-123-4567") {
		t.Error("response leaked raw phone number")
	}
	if store.Len() != 1 {
		t.Errorf("stored = %d, want 1", store.Len())
	}
}

func TestHandleTriage_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        triage.EngineConfig
		body       string
		wantStatus int
		wantError  string
	}{
		{"invalid JSON", triage.EngineConfig{}, `{bad`, http.StatusBadRequest, "invalid payload"},
		{"missing id", triage.EngineConfig{}, `{"title":"x"}`, http.StatusBadRequest, "invalid ticket: id is required"},
		{
			"generation failure fail closed",
			triage.EngineConfig{Generator: failingGenerator{}, FailClosed: true},
			`{"id":"T-2","title":"x"}`,
			http.StatusBadGateway,
			"narrative generation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _ := newTestService(t, tt.cfg)
			r := chi.NewRouter()
			New(nil, svc, 0).RegisterRoutes(r)

			rec := do(t, r, http.MethodPost, "/api/v1/triage", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "failing" }
func (failingGenerator) Generate(context.Context, *narrative.Request) (*narrative.Narrative, error) {
	return nil, errors.New("upstream unavailable")
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &triage.ValidationError{Field: "id", Reason: "is required"}, http.StatusBadRequest},
		{"generation", &narrative.GenerationError{Backend: "claude", Err: errors.New("503")}, http.StatusBadGateway},
		{"canceled", context.Canceled, http.StatusServiceUnavailable},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, got, tt.want)
		}
	}
}

// Batch

func TestHandleTriageBatch(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(t, 0)

	rec := do(t, r, http.MethodPost, "/api/v1/triage/batch", `{"tickets":[
		{"id":"B-1","title":"Checkout outage"},
		{"title":"no id"},
		{"id":"B-3","title":"Typo on pricing page"}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp batchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	if resp.Failed != 1 {
		t.Errorf("failed = %d, want 1", resp.Failed)
	}
	if resp.Results[0].TicketID != "B-1" || resp.Results[0].Record == nil {
		t.Errorf("slot 0 = %+v", resp.Results[0])
	}
	if resp.Results[1].Status != http.StatusBadRequest || resp.Results[1].Record != nil {
		t.Errorf("slot 1 = %+v, want 400 without record", resp.Results[1])
	}
	if resp.Results[2].TicketID != "B-3" || resp.Results[2].Status != http.StatusOK {
		t.Errorf("slot 2 = %+v", resp.Results[2])
	}
	if store.Len() != 2 {
		t.Errorf("stored = %d, want 2", store.Len())
	}
}

func TestHandleTriageBatch_TooLarge(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, 2)

	rec := do(t, r, http.MethodPost, "/api/v1/triage/batch", `{"tickets":[{"id":"1"},{"id":"2"},{"id":"3"}]}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/api/v1/triage/batch", `{"tickets":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// Lookups

func TestHandleGet(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, 0)

	rec := do(t, r, http.MethodPost, "/api/v1/triage", `{"id":"T-9","title":"API latency degraded"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d", rec.Code)
	}
	var created triage.Record
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"by id", "/api/v1/triage/" + created.ID, http.StatusOK},
		{"by ticket", "/api/v1/tickets/T-9/triage", http.StatusOK},
		{"missing id", "/api/v1/triage/nonexistent", http.StatusNotFound},
		{"missing ticket", "/api/v1/tickets/nope/triage", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got triage.Record
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.ID != created.ID {
				t.Errorf("ID = %q, want %q", got.ID, created.ID)
			}
		})
	}
}

// erroringService fails every lookup.
type erroringService struct{ TriageService }

func (erroringService) Get(context.Context, string) (*triage.Record, bool, error) {
	return nil, false, errors.New("db down")
}

func TestHandleGet_StoreError(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	New(nil, erroringService{}, 0).RegisterRoutes(r)

	rec := do(t, r, http.MethodGet, "/api/v1/triage/abc", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Error("internal error detail leaked to client")
	}
}

func TestHandleTriage_BodyLimit(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, 0)
	limited := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(w, req.Body, 16)
		r.ServeHTTP(w, req)
	})

	rec := do(t, limited, http.MethodPost, "/api/v1/triage", `{"id":"T-1","title":"a title that is far too long"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}
