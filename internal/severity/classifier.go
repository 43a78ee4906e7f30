package severity

import (
	"fmt"
	"math"
	"strings"

	"github.com/linnemanlabs/lookout/internal/signal"
	"github.com/linnemanlabs/lookout/internal/textnorm"
)

// Score scale and label boundaries. A score at or above a boundary takes the
// more severe label.
const (
	MinScore  = 0.0
	MaxScore  = 100.0
	BaseScore = 50.0

	boundaryP0 = 80.0
	boundaryP1 = 60.0
	boundaryP2 = 40.0
	boundaryP3 = 20.0

	// margin at which confidence saturates
	fullMargin = 10.0
)

// Confidence bounds.
const (
	MinConfidence      = 0.5
	MaxConfidence      = 0.98
	NoSignalConfidence = 0.45
)

var boundaries = []float64{boundaryP0, boundaryP1, boundaryP2, boundaryP3}

// Input is the (already redacted) ticket content the classifier scores.
type Input struct {
	Title       string
	Description string
	Tags        []string
}

// Facts is what rule predicates see: the normalized ticket and both signal
// lookups.
type Facts struct {
	words   string
	tags    map[string]struct{}
	KB      signal.Boost
	History signal.Boost
}

// NewFacts normalizes in for rule evaluation.
func NewFacts(in Input, kb, hist signal.Boost) *Facts {
	f := &Facts{
		words:   textnorm.Words(in.Title + "\n" + in.Description + "\n" + strings.Join(in.Tags, "\n")),
		tags:    make(map[string]struct{}, len(in.Tags)),
		KB:      kb,
		History: hist,
	}
	for _, t := range in.Tags {
		f.tags[strings.TrimSpace(textnorm.Fold(t))] = struct{}{}
	}
	return f
}

// HasAny reports whether any phrase occurs as whole words in the ticket.
func (f *Facts) HasAny(phrases ...string) bool {
	for _, p := range phrases {
		if textnorm.ContainsPhrase(f.words, p) {
			return true
		}
	}
	return false
}

// HasTag reports whether the ticket carries tag, compared case-insensitively.
func (f *Facts) HasTag(tag string) bool {
	_, ok := f.tags[textnorm.Fold(tag)]
	return ok
}

// Rule is one (predicate, adjustment) pair. Adjust receives the running score
// and returns the new one.
type Rule struct {
	Name   string
	Match  func(*Facts) bool
	Adjust func(score float64, f *Facts) float64
}

// Add returns an adjustment that shifts the score by delta.
func Add(delta float64) func(float64, *Facts) float64 {
	return func(s float64, _ *Facts) float64 { return s + delta }
}

// Pin returns an adjustment that sets the score to v.
func Pin(v float64) func(float64, *Facts) float64 {
	return func(float64, *Facts) float64 { return v }
}

// Keywords returns a predicate matching any of the phrases.
func Keywords(phrases ...string) func(*Facts) bool {
	return func(f *Facts) bool { return f.HasAny(phrases...) }
}

// DefaultRules is the stock rule table. Order matters: keyword tiers first,
// then contextual signals, then explicit severity tags, which override
// everything before them.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "critical-keywords", Match: Keywords("outage", "down", "unreachable", "ransomware", "breach", "security incident"), Adjust: Add(35)},
		{Name: "high-keywords", Match: Keywords("degraded", "latency", "data loss", "panic", "ddos", "partial outage"), Adjust: Add(20)},
		{Name: "medium-keywords", Match: Keywords("bug", "error", "failed job", "retry", "warning", "timeout"), Adjust: Add(5)},
		{Name: "low-keywords", Match: Keywords("request", "question", "how to", "feature request"), Adjust: Add(-15)},
		{Name: "info-keywords", Match: Keywords("informational", "notice", "fyi", "cosmetic", "typo"), Adjust: Add(-30)},
		{
			Name:   "knowledge-base-signal",
			Match:  func(f *Facts) bool { return f.KB.Matched },
			Adjust: func(s float64, f *Facts) float64 { return s + f.KB.Weight },
		},
		{
			Name:   "history-signal",
			Match:  func(f *Facts) bool { return f.History.Matched },
			Adjust: func(s float64, f *Facts) float64 { return s + f.History.Weight },
		},
		{Name: "tag-p4", Match: tag("p4"), Adjust: Pin(MinScore)},
		{Name: "tag-p3", Match: tag("p3"), Adjust: Pin(30)},
		{Name: "tag-p2", Match: tag("p2"), Adjust: Pin(BaseScore)},
		{Name: "tag-p1", Match: tag("p1"), Adjust: Pin(70)},
		{Name: "tag-p0", Match: tag("p0"), Adjust: Pin(MaxScore)},
	}
}

func tag(name string) func(*Facts) bool {
	return func(f *Facts) bool { return f.HasTag(name) }
}

// Result is a classification outcome.
type Result struct {
	Level      Level
	Score      float64
	Confidence float64
	Fired      []string
}

// Rationale renders the result as a single sentence.
func (r Result) Rationale() string {
	if len(r.Fired) == 0 {
		return fmt.Sprintf("no severity signals found; defaulted to %s", r.Level)
	}
	return fmt.Sprintf("score %.1f -> %s (%s)", r.Score, r.Level, strings.Join(r.Fired, ", "))
}

// Classifier evaluates a fixed rule table. It holds no mutable state.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier over rules, or over DefaultRules when
// none are given.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify scores the ticket and both signal lookups. Identical inputs always
// produce identical results.
func (c *Classifier) Classify(in Input, kb, hist signal.Boost) Result {
	f := NewFacts(in, kb, hist)

	score := BaseScore
	var fired []string
	for _, r := range c.rules {
		if r.Match == nil || r.Adjust == nil || !r.Match(f) {
			continue
		}
		score = r.Adjust(score, f)
		fired = append(fired, r.Name)
	}
	score = clamp(score, MinScore, MaxScore)

	if len(fired) == 0 {
		return Result{Level: Default, Score: score, Confidence: NoSignalConfidence}
	}
	return Result{
		Level:      Quantize(score),
		Score:      score,
		Confidence: Confidence(score),
		Fired:      fired,
	}
}

// Quantize maps a score to its label.
func Quantize(score float64) Level {
	switch {
	case score >= boundaryP0:
		return P0
	case score >= boundaryP1:
		return P1
	case score >= boundaryP2:
		return P2
	case score >= boundaryP3:
		return P3
	default:
		return P4
	}
}

// Confidence grows linearly with the distance from score to the nearest label
// boundary, from MinConfidence on a boundary to MaxConfidence at fullMargin.
func Confidence(score float64) float64 {
	margin := math.Inf(1)
	for _, b := range boundaries {
		margin = math.Min(margin, math.Abs(score-b))
	}
	frac := math.Min(1, margin/fullMargin)
	return clamp(MinConfidence+(MaxConfidence-MinConfidence)*frac, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
