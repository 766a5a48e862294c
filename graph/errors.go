package graph

import "fmt"

// BackendError reports an inference call that failed or violated its
// contract (e.g. unparseable output, no tool call under forced tool choice).
// Fatal to the invocation; never retried internally.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return fmt.Sprintf("model backend error: %v", e.Err) }

// Unwrap supports errors.Is / errors.As on the wrapped cause.
func (e *BackendError) Unwrap() error { return e.Err }

// StructuredOutputError reports finalization that could not produce a
// schema-conforming record. Raw carries the offending model output when
// available. Fatal to the invocation; a partially filled record is never
// returned alongside it.
type StructuredOutputError struct {
	Raw string
	Err error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output rejected: %v", e.Err)
}

// Unwrap supports errors.Is / errors.As on the wrapped cause.
func (e *StructuredOutputError) Unwrap() error { return e.Err }

// LoopLimitError reports that the iteration budget was exhausted before the
// router selected finalization. The agent kept requesting ordinary tools.
type LoopLimitError struct {
	Limit int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("iteration budget of %d model turns exhausted without a final response", e.Limit)
}
