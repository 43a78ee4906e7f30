package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/lookout/internal/authmw"
	lc "github.com/linnemanlabs/lookout/internal/cfg"
	"github.com/linnemanlabs/lookout/internal/escalation"
	"github.com/linnemanlabs/lookout/internal/narrative/claude"
	"github.com/linnemanlabs/lookout/internal/narrative/provider"
	"github.com/linnemanlabs/lookout/internal/pii"
	"github.com/linnemanlabs/lookout/internal/postgres"
	sig "github.com/linnemanlabs/lookout/internal/signal"
	"github.com/linnemanlabs/lookout/internal/triage"
	"github.com/linnemanlabs/lookout/internal/triage/memstore"
	"github.com/linnemanlabs/lookout/internal/triage/pgstore"
	"github.com/linnemanlabs/lookout/internal/triage/redisstore"
	"github.com/linnemanlabs/lookout/internal/triageapi"
)

// maxRequestBody fits a full batch of tickets.
const maxRequestBody = 1 << 20

// buildEngine loads the signal tables, selects the narrative backend and
// assembles the triage engine.
func buildEngine(ctx context.Context, L log.Logger, c *lc.Config, tm *triage.Metrics) (*triage.Engine, error) {
	knowledge, err := loadTable(ctx, L, "kb", c.KnowledgeBasePath)
	if err != nil {
		return nil, err
	}
	history, err := loadTable(ctx, L, "history", c.HistoryPath)
	if err != nil {
		return nil, err
	}

	policy, err := escalation.New(c.ConfidenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("escalation policy: %w", err)
	}

	generator, err := provider.New(ctx, provider.Config{
		Backend:    c.NarrativeBackend,
		FailClosed: c.NarrativeFailClosed,
		Claude: claude.Options{
			APIKey:            c.ClaudeAPIKey,
			Model:             c.ClaudeModel,
			MaxTokens:         c.ClaudeMaxTokens,
			CostPer1KTokens:   c.CostPer1KTokens,
			RequestsPerSecond: c.NarrativeRPS,
			RequestTimeout:    c.NarrativeTimeout(),
		},
		BedrockRegion: c.BedrockRegion,
	}, L)
	if err != nil {
		return nil, fmt.Errorf("narrative backend: %w", err)
	}
	L.Info(ctx, "narrative backend ready", "backend", generator.Name(), "model", c.ClaudeModel)

	var hooks triage.EngineHooks
	if tm != nil {
		hooks = tm.Hooks()
	}
	return triage.NewEngine(triage.EngineConfig{
		Redactor:         pii.New(),
		Knowledge:        knowledge,
		History:          history,
		Policy:           policy,
		Generator:        generator,
		RedactPII:        c.RedactPII,
		FailClosed:       c.NarrativeFailClosed,
		MaxOutputChars:   c.NarrativeMaxOutputChars,
		NarrativeTimeout: c.NarrativeTimeout(),
		BatchConcurrency: c.BatchConcurrency,
	}, L, hooks), nil
}

// loadTable reads a signal table, substituting an empty one when the path is
// unset or the file does not exist. Any other read or decode failure is fatal.
func loadTable(ctx context.Context, L log.Logger, name, path string) (*sig.Table, error) {
	if path == "" {
		L.Warn(ctx, "signal table disabled", "table", name)
		return sig.Empty(name), nil
	}
	t, err := sig.Load(name, path)
	if errors.Is(err, os.ErrNotExist) {
		L.Warn(ctx, "signal table not found, using empty table", "table", name, "path", path)
		return sig.Empty(name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s table: %w", name, err)
	}
	L.Info(ctx, "loaded signal table", "table", name, "path", path, "entries", t.Len())
	return t, nil
}

// openStore picks Postgres, Redis or memory, in that order of preference.
// The returned close func is never nil.
func openStore(ctx context.Context, L log.Logger, c *lc.Config, reg prometheus.Registerer) (triage.Store, func(), error) {
	switch {
	case c.DatabaseURL != "":
		queryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lookout_db_query_duration_seconds",
			Help:    "Duration of individual database queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "outcome"})
		reg.MustRegister(queryDuration)

		pool, err := postgres.NewPool(ctx, c.DatabaseURL, postgres.PoolOptions{
			MaxConns:  int32(c.DBMaxConns), //nolint:gosec // small operator-set value
			SlowQuery: c.DBSlowQuery(),
			Observer: postgres.QueryObserverFunc(func(_ context.Context, method, route, outcome string, d time.Duration) {
				queryDuration.WithLabelValues(method, route, outcome).Observe(d.Seconds())
			}),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		s, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgstore init: %w", err)
		}
		L.Info(ctx, "using postgres store")
		return s, pool.Close, nil

	case c.RedisURL != "":
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		s, err := redisstore.New(ctx, client, c.RedisTTL())
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redisstore init: %w", err)
		}
		L.Info(ctx, "using redis store", "ttl", c.RedisTTL().String())
		return s, func() { _ = client.Close() }, nil

	default:
		L.Info(ctx, "using in-memory store (no database-url or redis-url configured)")
		return memstore.New(), func() {}, nil
	}
}

// newAPIHandler builds the public listener's handler: a chi router for the
// health probes and the authenticated triage API, wrapped in the shared
// middleware stack.
func newAPIHandler(L log.Logger, m *metrics.ServerMetrics, api *triageapi.API, tokens string, trustedHops int, liveness, readiness health.Probe) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	// chi route pattern onto the logger and span
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(postgres.RequestStats)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxRequestBody))

	r.Get("/-/healthy", health.HealthzHandler(liveness))
	r.Get("/-/ready", health.ReadyzHandler(readiness))

	api.RegisterRoutes(r, authmw.BearerToken(authmw.ParseTokens(tokens)...))

	// First entry is outermost.
	return httpmw.Chain(r,
		httpmw.SecurityHeaders,
		httpmw.Recover(L, m.IncHttpPanic),
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: trustedHops}),
		m.Middleware,
		otelMiddleware,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		httpmw.WithLogger(L),
	)
}

// otelMiddleware starts the server span. Probes are not traced.
func otelMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// renamed to the route pattern by AnnotateHTTPRoute
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
}
