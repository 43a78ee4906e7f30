package triage

import (
	"github.com/linnemanlabs/lookout/internal/pii"
	"github.com/linnemanlabs/lookout/internal/severity"
)

// DecisionEvent is passed to EngineHooks.OnDecision.
type DecisionEvent struct {
	Severity        severity.Level
	Confidence      float64
	Escalate        bool
	NarrativeSource string
	Duration        float64
}

// EngineHooks lets callers observe the engine without coupling it to a
// metrics backend. Nil hooks are skipped.
type EngineHooks struct {
	OnValidationError func()
	OnRedaction       func(category pii.Category, count int)
	OnNarrative       func(backend, outcome string, duration float64, tokens int, cost float64)
	OnDecision        func(e *DecisionEvent)
}

func (h EngineHooks) validationFailed() {
	if h.OnValidationError != nil {
		h.OnValidationError()
	}
}

func (h EngineHooks) redacted(results []pii.Result) {
	if h.OnRedaction == nil {
		return
	}
	for _, r := range results {
		for c, n := range r.Counts {
			h.OnRedaction(c, n)
		}
	}
}

func (h EngineHooks) narrated(backend, outcome string, duration float64, tokens int, cost float64) {
	if h.OnNarrative != nil {
		h.OnNarrative(backend, outcome, duration, tokens, cost)
	}
}

func (h EngineHooks) decided(e *DecisionEvent) {
	if h.OnDecision != nil {
		h.OnDecision(e)
	}
}
