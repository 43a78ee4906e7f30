// Package provider selects the narrative backend at startup.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lookout/internal/narrative"
	"github.com/linnemanlabs/lookout/internal/narrative/claude"
)

// BackendStub is the deterministic backend name.
const BackendStub = "stub"

// Backends lists every supported backend name.
var Backends = []string{BackendStub, claude.BackendAnthropic, claude.BackendBedrock}

// ErrConfiguration matches any *ConfigurationError with errors.Is.
var ErrConfiguration = errors.New("narrative backend misconfigured")

// ConfigurationError reports an unusable backend selection.
type ConfigurationError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("narrative backend %q: %s", e.Backend, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrConfiguration and the cause, if any.
func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

// Config selects and configures a backend.
type Config struct {
	Backend       string
	FailClosed    bool
	Claude        claude.Options
	BedrockRegion string
}

// New builds the configured backend. When the selection is unusable it
// returns a *ConfigurationError if FailClosed is set, and otherwise logs a
// warning and falls back to the deterministic stub.
func New(ctx context.Context, cfg Config, logger log.Logger) (narrative.Generator, error) {
	if logger == nil {
		logger = log.Nop()
	}

	g, err := build(ctx, cfg)
	if err == nil {
		return g, nil
	}
	if cfg.FailClosed {
		return nil, err
	}
	logger.Warn(ctx, "narrative backend unusable, falling back to stub", "backend", cfg.Backend, "error", err)
	return narrative.Stub{}, nil
}

func build(ctx context.Context, cfg Config) (narrative.Generator, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", BackendStub:
		return narrative.Stub{}, nil

	case claude.BackendAnthropic:
		if cfg.Claude.APIKey == "" {
			return nil, &ConfigurationError{Backend: backend, Reason: "api key is required"}
		}
		if cfg.Claude.Model == "" {
			return nil, &ConfigurationError{Backend: backend, Reason: "model is required"}
		}
		return claude.New(cfg.Claude), nil

	case claude.BackendBedrock:
		if cfg.BedrockRegion == "" {
			return nil, &ConfigurationError{Backend: backend, Reason: "region is required"}
		}
		if cfg.Claude.Model == "" {
			return nil, &ConfigurationError{Backend: backend, Reason: "model is required"}
		}
		c, err := claude.NewBedrock(ctx, cfg.BedrockRegion, cfg.Claude)
		if err != nil {
			return nil, &ConfigurationError{Backend: backend, Reason: "aws setup failed", Err: err}
		}
		return c, nil

	default:
		return nil, &ConfigurationError{
			Backend: cfg.Backend,
			Reason:  fmt.Sprintf("unsupported (want one of %s)", strings.Join(Backends, ", ")),
		}
	}
}
