package narrative

import "context"

// Stub is the deterministic backend. It returns the template and uses no
// tokens.
type Stub struct{}

// Name implements Generator.
func (Stub) Name() string { return "stub" }

// Generate implements Generator.
func (s Stub) Generate(ctx context.Context, req *Request) (*Narrative, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GenerationError{Backend: s.Name(), Err: err}
	}
	return Template(req), nil
}
