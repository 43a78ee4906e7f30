// Package escalation decides whether a triage decision needs human review.
package escalation

import "fmt"

// DefaultThreshold is the confidence below which a decision escalates.
const DefaultThreshold = 0.65

// Policy escalates any decision whose confidence is strictly below Threshold.
type Policy struct {
	Threshold float64
}

// New returns a Policy after checking threshold is within [0,1].
func New(threshold float64) (Policy, error) {
	if threshold < 0 || threshold > 1 {
		return Policy{}, fmt.Errorf("invalid escalation threshold %v (must be 0..1)", threshold)
	}
	return Policy{Threshold: threshold}, nil
}

// Escalate reports whether confidence falls below the threshold.
func (p Policy) Escalate(confidence float64) bool {
	return confidence < p.Threshold
}

// Note explains an escalation for the decision rationale.
func (p Policy) Note(confidence float64) string {
	return fmt.Sprintf("escalated for human review: confidence %.2f below threshold %.2f", confidence, p.Threshold)
}
