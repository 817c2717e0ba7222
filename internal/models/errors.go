package models

import "errors"

// Error taxonomy for the harvest pipeline.
//
// ErrMalformedResponse and network failures are recovered locally (retry,
// then skip-and-record). ErrMissingToken and ErrStaleToken indicate a
// builder/extractor sequencing bug and are never retried.
var (
	// ErrMalformedResponse means a response body did not carry the critical
	// hidden state fields required to build the next postback.
	ErrMalformedResponse = errors.New("malformed response: critical state fields missing")

	// ErrMissingToken means a postback was requested without a prior
	// extraction's token set. Programming invariant violation, fatal.
	ErrMissingToken = errors.New("missing state token")

	// ErrStaleToken means a postback was requested with a token set older
	// than the one last consumed in the same traversal. The server would
	// reject or silently reset such a request, so it is refused up front.
	ErrStaleToken = errors.New("stale state token")

	// ErrNoTraversalSucceeded means not a single search unit completed
	// discovery; the search space is unreachable and Phase 1 aborts.
	ErrNoTraversalSucceeded = errors.New("no search unit completed discovery")
)
