package models

// TraversalPhase is the state of a single search-term traversal.
type TraversalPhase int

const (
	TraversalInit TraversalPhase = iota
	TraversalSearching
	TraversalPaginating
	TraversalDone
	TraversalFailed
)

// String returns the phase name for logging.
func (p TraversalPhase) String() string {
	switch p {
	case TraversalInit:
		return "init"
	case TraversalSearching:
		return "searching"
	case TraversalPaginating:
		return "paginating"
	case TraversalDone:
		return "done"
	case TraversalFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TraversalState is the per-term traversal context: the latest token set,
// the current page index and the identifiers accumulated so far. It is
// exclusively owned by the worker driving the traversal and never shared.
type TraversalState struct {
	Term        string
	Phase       TraversalPhase
	Token       StateToken
	Page        int
	Identifiers []Identifier
}
