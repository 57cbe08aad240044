package nutrition

import "errors"

// Sentinel errors for the pipeline failure taxonomy. Callers classify
// failures with errors.Is; stage code wraps these with context using
// fmt.Errorf and %w.
var (
	// ErrIndexUnavailable means the vector index could not be reached or
	// queried. Retryable from the caller's point of view.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrInsufficientCandidates means retrieval produced zero usable
	// candidates even after constraint relaxation. Not retryable without
	// changing the query or the corpus.
	ErrInsufficientCandidates = errors.New("insufficient candidates")

	// ErrGenerationTimeout means a single generation attempt exceeded its
	// deadline.
	ErrGenerationTimeout = errors.New("generation timeout")

	// ErrGenerationUnavailable means the generation backend failed for a
	// reason other than a timeout.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrPlanStructureInvalid means generated output could not be shaped into
	// a structurally complete plan. Fatal: no repair attempt is made.
	ErrPlanStructureInvalid = errors.New("plan structure invalid")

	// ErrValidationExhausted means the repair budget ran out with violations
	// still outstanding. The last rejected draft is attached for diagnostics.
	ErrValidationExhausted = errors.New("validation exhausted")
)
