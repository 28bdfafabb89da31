package blueprint

import "errors"

var (
	// ErrDuplicateName is returned when a vertex or edge name is reused.
	ErrDuplicateName = errors.New("blueprint: duplicate name")

	// ErrDanglingReference is returned when an edge references an unknown vertex.
	ErrDanglingReference = errors.New("blueprint: dangling reference")

	// ErrUnknownSignal is returned when an edge is labeled with a signal that
	// is neither built in nor declared by the document.
	ErrUnknownSignal = errors.New("blueprint: unknown signal")

	// ErrInvalidBatchType is returned for a batch type outside biased, sampled,
	// random and personalized.
	ErrInvalidBatchType = errors.New("blueprint: invalid batch type")

	// ErrMissingBatchEdge is returned when a vertex has no outgoing BATCH edge.
	ErrMissingBatchEdge = errors.New("blueprint: vertex is missing a BATCH edge")

	// ErrIncompleteCoverage is returned when a vertex neither covers every
	// signal nor has a DEFAULT edge.
	ErrIncompleteCoverage = errors.New("blueprint: vertex does not cover all signals and has no DEFAULT edge")

	// ErrEmpty is returned when a blueprint has no vertices.
	ErrEmpty = errors.New("blueprint: no vertices")

	// ErrUnknownState is returned by Step for a state that is not a vertex.
	ErrUnknownState = errors.New("blueprint: unknown state")

	// ErrInvariantViolation is returned by Step when no transition exists for
	// a validated vertex. Validation guarantees it cannot happen.
	ErrInvariantViolation = errors.New("blueprint: no transition found")

	// ErrUnknownPreset is returned for a factory id with no preset.
	ErrUnknownPreset = errors.New("blueprint: unknown preset")

	// ErrMissingCustomID is returned when resolving a custom source without an id.
	ErrMissingCustomID = errors.New("blueprint: custom source requires a custom id")

	// ErrMissingFactoryID is returned when resolving a factory source without an id.
	ErrMissingFactoryID = errors.New("blueprint: factory source requires a factory id")
)
