// Package cfg holds lookout's application configuration. Flags are the source
// of truth; main fills unset ones from LOOKOUT_ environment variables.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Backend names accepted by -narrative-backend.
var narrativeBackends = []string{"stub", "claude", "bedrock"}

// Config adds application fields to the common cfg.Registerable and
// cfg.Validatable interfaces.
type Config struct {
	// service
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	MaxBatchSize          int
	BatchConcurrency      int

	// storage and notification
	DatabaseURL       string
	DBMaxConns        int
	DBSlowQueryMs     int
	RedisURL          string
	RedisTTLHours     int
	SlackWebhookURL   string
	KnowledgeBasePath string
	HistoryPath       string

	// triage core
	RedactPII               bool
	ConfidenceThreshold     float64
	NarrativeFailClosed     bool
	NarrativeMaxOutputChars int

	// narrative backend
	NarrativeBackend        string
	NarrativeTimeoutSeconds int
	NarrativeRPS            float64
	ClaudeAPIKey            string
	ClaudeModel             string
	ClaudeMaxTokens         int
	CostPer1KTokens         float64
	BedrockRegion           string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token(s) for /api/v1, comma separated during rotation")
	fs.IntVar(&c.MaxBatchSize, "max-batch-size", 100, "maximum tickets per batch request (1..1000)")
	fs.IntVar(&c.BatchConcurrency, "batch-concurrency", 8, "tickets triaged in parallel within a batch (1..64)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 0, "PostgreSQL pool size (0 = pgx default)")
	fs.IntVar(&c.DBSlowQueryMs, "db-slow-query-ms", 250, "log successful queries slower than this at warn (0 = never)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis URL for decision storage (redis://...)")
	fs.IntVar(&c.RedisTTLHours, "redis-ttl-hours", 168, "hours a decision record is kept in Redis (1..8760)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for escalation notifications")
	fs.StringVar(&c.KnowledgeBasePath, "kb-path", "data/knowledge_base.json", "knowledge base signal table (JSON or YAML)")
	fs.StringVar(&c.HistoryPath, "history-path", "data/history.yaml", "incident history signal table (JSON or YAML)")

	fs.BoolVar(&c.RedactPII, "redact-pii", true, "mask PII before classification, generation and storage")
	fs.Float64Var(&c.ConfidenceThreshold, "confidence-threshold", 0.65, "escalate decisions with confidence below this (0..1)")
	fs.BoolVar(&c.NarrativeFailClosed, "narrative-fail-closed", false, "fail triage instead of using the template when the narrative backend fails")
	fs.IntVar(&c.NarrativeMaxOutputChars, "narrative-max-output-chars", 480, "maximum characters per generated text field (16..8192)")

	fs.StringVar(&c.NarrativeBackend, "narrative-backend", "stub", "narrative backend: "+strings.Join(narrativeBackends, ", "))
	fs.IntVar(&c.NarrativeTimeoutSeconds, "narrative-timeout-seconds", 20, "timeout for one narrative backend call (1..300)")
	fs.Float64Var(&c.NarrativeRPS, "narrative-rps", 0, "narrative backend requests per second (0 = unlimited)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the claude backend")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model or Bedrock model ID")
	fs.IntVar(&c.ClaudeMaxTokens, "claude-max-tokens", 512, "max output tokens per narrative call (1..8192)")
	fs.Float64Var(&c.CostPer1KTokens, "cost-per-1k-tokens", 0, "USD per 1000 tokens used for cost accounting")
	fs.StringVar(&c.BedrockRegion, "bedrock-region", "", "AWS region for the bedrock backend")
}

// NarrativeTimeout returns the per-call narrative timeout.
func (c *Config) NarrativeTimeout() time.Duration {
	return time.Duration(c.NarrativeTimeoutSeconds) * time.Second
}

// DBSlowQuery returns the slow query logging threshold.
func (c *Config) DBSlowQuery() time.Duration {
	return time.Duration(c.DBSlowQueryMs) * time.Millisecond
}

// RedisTTL returns the Redis record lifetime.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.RedisTTLHours) * time.Hour
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}
	if strings.TrimSpace(strings.ReplaceAll(c.APIToken, ",", "")) == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}
	if c.MaxBatchSize <= 0 || c.MaxBatchSize > 1000 {
		errs = append(errs, fmt.Errorf("invalid MAX_BATCH_SIZE %d (must be 1..1000)", c.MaxBatchSize))
	}
	if c.BatchConcurrency <= 0 || c.BatchConcurrency > 64 {
		errs = append(errs, fmt.Errorf("invalid BATCH_CONCURRENCY %d (must be 1..64)", c.BatchConcurrency))
	}

	// one shared store at most
	if c.DatabaseURL != "" && c.RedisURL != "" {
		errs = append(errs, errors.New("DATABASE_URL and REDIS_URL are mutually exclusive"))
	}
	if c.DBMaxConns < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be >= 0)", c.DBMaxConns))
	}
	if c.DBSlowQueryMs < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY_MS %d (must be >= 0)", c.DBSlowQueryMs))
	}
	if c.RedisTTLHours <= 0 || c.RedisTTLHours > 8760 {
		errs = append(errs, fmt.Errorf("invalid REDIS_TTL_HOURS %d (must be 1..8760)", c.RedisTTLHours))
	}

	// NaN fails both comparisons, so test for the valid range
	if !(c.ConfidenceThreshold >= 0 && c.ConfidenceThreshold <= 1) {
		errs = append(errs, fmt.Errorf("invalid CONFIDENCE_THRESHOLD %v (must be 0..1)", c.ConfidenceThreshold))
	}
	if c.NarrativeMaxOutputChars < 16 || c.NarrativeMaxOutputChars > 8192 {
		errs = append(errs, fmt.Errorf("invalid NARRATIVE_MAX_OUTPUT_CHARS %d (must be 16..8192)", c.NarrativeMaxOutputChars))
	}

	if !slices.Contains(narrativeBackends, strings.ToLower(c.NarrativeBackend)) {
		errs = append(errs, fmt.Errorf("invalid NARRATIVE_BACKEND %q (must be one of %s)", c.NarrativeBackend, strings.Join(narrativeBackends, ", ")))
	}
	if c.NarrativeTimeoutSeconds <= 0 || c.NarrativeTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid NARRATIVE_TIMEOUT_SECONDS %d (must be 1..300)", c.NarrativeTimeoutSeconds))
	}
	if !(c.NarrativeRPS >= 0) {
		errs = append(errs, fmt.Errorf("invalid NARRATIVE_RPS %v (must be >= 0)", c.NarrativeRPS))
	}
	if c.ClaudeMaxTokens <= 0 || c.ClaudeMaxTokens > 8192 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_MAX_TOKENS %d (must be 1..8192)", c.ClaudeMaxTokens))
	}
	if !(c.CostPer1KTokens >= 0) {
		errs = append(errs, fmt.Errorf("invalid COST_PER_1K_TOKENS %v (must be >= 0)", c.CostPer1KTokens))
	}

	// Backend credentials are checked by the provider at startup so that a
	// fail-open deployment can still fall back to the stub.

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
