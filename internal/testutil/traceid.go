package testutil

// FixedTraceIDs returns the same trace id on every call, so CLI responses
// can be compared byte for byte.
//
// Thread-safety: FixedTraceIDs is stateless and safe for concurrent use.
type FixedTraceIDs struct {
	id string
}

// NewFixedTraceIDs creates a generator for id. An empty id becomes
// "trace-test".
func NewFixedTraceIDs(id string) *FixedTraceIDs {
	if id == "" {
		id = "trace-test"
	}
	return &FixedTraceIDs{id: id}
}

// Generate returns the fixed trace id.
func (g *FixedTraceIDs) Generate() string {
	return g.id
}
