package triage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lookout/internal/escalation"
	"github.com/linnemanlabs/lookout/internal/narrative"
	"github.com/linnemanlabs/lookout/internal/pii"
	"github.com/linnemanlabs/lookout/internal/severity"
	"github.com/linnemanlabs/lookout/internal/signal"
)

var tracer = otel.Tracer("github.com/linnemanlabs/lookout/internal/triage")

// DefaultBatchConcurrency bounds parallel tickets in TriageBatch.
const DefaultBatchConcurrency = 8

// EngineConfig wires the Engine. Nil components get defaults: all PII
// categories, empty signal tables, the stock rule table and the stub backend.
type EngineConfig struct {
	Redactor   *pii.Redactor
	Knowledge  *signal.Table
	History    *signal.Table
	Classifier *severity.Classifier
	Policy     escalation.Policy
	Generator  narrative.Generator

	RedactPII        bool
	FailClosed       bool
	MaxOutputChars   int
	NarrativeTimeout time.Duration
	BatchConcurrency int
}

// Engine produces triage decisions. It holds only read-only state and is safe
// for concurrent use.
type Engine struct {
	cfg    EngineConfig
	logger log.Logger
	hooks  EngineHooks
}

// NewEngine creates a new triage engine with the given dependencies.
func NewEngine(cfg EngineConfig, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Redactor == nil {
		cfg.Redactor = pii.New()
	}
	if cfg.Knowledge == nil {
		cfg.Knowledge = signal.Empty("kb")
	}
	if cfg.History == nil {
		cfg.History = signal.Empty("history")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = severity.NewClassifier()
	}
	if cfg.Generator == nil {
		cfg.Generator = narrative.Stub{}
	}
	if cfg.MaxOutputChars <= 0 {
		cfg.MaxOutputChars = narrative.DefaultMaxOutputChars
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	return &Engine{cfg: cfg, logger: logger, hooks: hooks}
}

// Redact returns a copy of t with PII masked in title, description and tags,
// plus the per-field results. With redaction disabled t is returned unchanged.
func (e *Engine) Redact(t Ticket) (Ticket, []pii.Result) {
	on := e.cfg.RedactPII
	results := make([]pii.Result, 0, 2+len(t.Tags))

	title := e.cfg.Redactor.Redact(t.Title, on)
	desc := e.cfg.Redactor.Redact(t.Description, on)
	results = append(results, title, desc)

	out := t
	out.Title = title.Text
	out.Description = desc.Text
	if len(t.Tags) > 0 {
		out.Tags = make([]string, len(t.Tags))
		for i, tag := range t.Tags {
			r := e.cfg.Redactor.Redact(tag, on)
			out.Tags[i] = r.Text
			results = append(results, r)
		}
	}
	return out, results
}

// Triage runs the full pipeline for one ticket: validate, redact, look up
// both signal tables, classify, decide escalation, then generate the
// narrative or fall back to the template. Only a malformed ticket or, when
// fail-closed, a narrative failure returns an error.
func (e *Engine) Triage(ctx context.Context, t Ticket) (*Decision, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "triage.ticket", trace.WithAttributes(
		attribute.String("lookout.ticket.id", t.ID),
		attribute.String("lookout.ticket.source", t.Source),
	))
	defer span.End()

	if err := t.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.hooks.validationFailed()
		return nil, err
	}

	L := e.logger.With("ticket_id", t.ID)

	red, results := e.Redact(t)
	found := pii.Union(results...)
	span.AddEvent("pii.scan", trace.WithAttributes(
		attribute.Bool("lookout.pii.enabled", e.cfg.RedactPII),
		attribute.StringSlice("lookout.pii.categories", categoryStrings(found)),
	))
	e.hooks.redacted(results)

	text := red.Title + "\n" + red.Description
	kb := e.cfg.Knowledge.Lookup(text, red.Tags)
	hist := e.cfg.History.Lookup(text, red.Tags)
	span.AddEvent("signals.lookup", trace.WithAttributes(
		attribute.String("lookout.kb.reference", kb.Reference),
		attribute.String("lookout.history.reference", hist.Reference),
	))

	cls := e.cfg.Classifier.Classify(severity.Input{
		Title:       red.Title,
		Description: red.Description,
		Tags:        red.Tags,
	}, kb, hist)
	escalate := e.cfg.Policy.Escalate(cls.Confidence)
	span.AddEvent("severity.scored", trace.WithAttributes(
		attribute.String("lookout.severity", string(cls.Level)),
		attribute.Float64("lookout.score", cls.Score),
		attribute.Float64("lookout.confidence", cls.Confidence),
		attribute.Bool("lookout.escalate", escalate),
	))

	d := &Decision{
		TicketID:         t.ID,
		Severity:         cls.Level,
		Confidence:       cls.Confidence,
		Escalate:         escalate,
		RedactionApplied: len(found) > 0,
		PIICategories:    found,
		References:       []string{},
		KnowledgeRefs:    refs(kb),
		HistoryRefs:      refs(hist),
		PromptVersion:    narrative.PromptVersion,
	}
	d.References = append(append(d.References, d.KnowledgeRefs...), d.HistoryRefs...)

	req := &narrative.Request{
		TicketID:       t.ID,
		Title:          red.Title,
		Text:           red.Description,
		Tags:           red.Tags,
		Severity:       cls.Level,
		Confidence:     cls.Confidence,
		KnowledgeRefs:  d.KnowledgeRefs,
		HistoryRefs:    d.HistoryRefs,
		Rationale:      cls.Rationale(),
		PIIFound:       len(found) > 0,
		MaxOutputChars: e.cfg.MaxOutputChars,
	}
	fallback := narrative.Template(req)

	n, missing, err := e.narrate(ctx, req)
	d.NarrativeSource = e.cfg.Generator.Name()
	if len(missing) > 0 {
		L.Warn(ctx, "narrative incomplete, filling from template", "missing", missing)
		d.NarrativePartial = true
	}
	if err != nil {
		if e.cfg.FailClosed {
			L.Warn(ctx, "narrative generation failed", "error", err, "fail_closed", true)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		L.Warn(ctx, "narrative generation failed, using template", "error", err, "fail_closed", false)
		n, d.NarrativeSource = fallback, SourceFallback
	}

	n = narrative.Sanitize(n, fallback, e.cfg.MaxOutputChars)
	d.Summary = n.Summary
	d.Actions = n.Actions
	d.Rationale = n.Rationale
	d.TokensUsed = n.TokensUsed
	d.Cost = n.Cost
	if escalate {
		d.Rationale += "; " + e.cfg.Policy.Note(cls.Confidence)
	}

	dur := time.Since(start)
	span.SetAttributes(
		attribute.String("lookout.severity", string(d.Severity)),
		attribute.String("lookout.narrative.source", d.NarrativeSource),
	)
	e.hooks.decided(&DecisionEvent{
		Severity:        d.Severity,
		Confidence:      d.Confidence,
		Escalate:        d.Escalate,
		NarrativeSource: d.NarrativeSource,
		Duration:        dur.Seconds(),
	})

	L.Info(ctx, "triage decision",
		"severity", d.Severity,
		"confidence", d.Confidence,
		"escalate", d.Escalate,
		"redacted", d.RedactionApplied,
		"references", d.References,
		"narrative_source", d.NarrativeSource,
		"duration", dur.Seconds(),
	)
	return d, nil
}

// narrate makes the single backend attempt under the configured timeout. It
// also returns the fields the backend left empty; those are recorded with the
// "partial" outcome.
func (e *Engine) narrate(ctx context.Context, req *narrative.Request) (*narrative.Narrative, []string, error) {
	backend := e.cfg.Generator.Name()

	ctx, span := tracer.Start(ctx, "narrative.generate", trace.WithAttributes(
		attribute.String("lookout.narrative.backend", backend),
		attribute.String("lookout.prompt.version", narrative.PromptVersion),
	))
	defer span.End()

	if e.cfg.NarrativeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.NarrativeTimeout)
		defer cancel()
	}

	start := time.Now()
	n, err := e.cfg.Generator.Generate(ctx, req)
	dur := time.Since(start).Seconds()

	if err == nil && n == nil {
		err = errors.New("backend returned no narrative")
	}
	if err != nil {
		var ge *narrative.GenerationError
		if !errors.As(err, &ge) {
			err = &narrative.GenerationError{Backend: backend, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("lookout.narrative.outcome", "error"))
		e.hooks.narrated(backend, "error", dur, 0, 0)
		return nil, nil, err
	}

	outcome := "ok"
	missing := narrative.Missing(n)
	if len(missing) > 0 {
		outcome = "partial"
		span.SetAttributes(attribute.StringSlice("lookout.narrative.missing", missing))
	}
	span.SetAttributes(
		attribute.String("lookout.narrative.outcome", outcome),
		attribute.Int("lookout.narrative.tokens", n.TokensUsed),
		attribute.Float64("lookout.narrative.cost_usd", n.Cost),
	)
	e.hooks.narrated(backend, outcome, dur, n.TokensUsed, n.Cost)
	return n, missing, nil
}

// TriageBatch triages tickets in parallel, bounded by BatchConcurrency.
// Result i always belongs to tickets[i]; one ticket's failure never affects
// another. Tickets not yet started when ctx is done fail with ctx.Err().
func (e *Engine) TriageBatch(ctx context.Context, tickets []Ticket) []BatchResult {
	results := make([]BatchResult, len(tickets))

	var g errgroup.Group
	g.SetLimit(e.cfg.BatchConcurrency)
	for i, t := range tickets {
		g.Go(func() error {
			results[i].TicketID = t.ID
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Decision, results[i].Err = e.Triage(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func refs(b signal.Boost) []string {
	if !b.Matched {
		return []string{}
	}
	return []string{b.Reference}
}

func categoryStrings(cats []pii.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
