package state

import "fmt"

// maxParentDepth bounds the parent chain walk. A well-formed tenant tree is
// far shallower; exceeding it means the relationship data is cyclic.
const maxParentDepth = 32

// CycleError indicates a parent chain that revisited an identifier or
// exceeded the depth bound.
type CycleError struct {
	ID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("parent chain for %q is cyclic or exceeds depth %d", e.ID, maxParentDepth)
}

// ParentLookupError wraps a failed parent fetch. It is recovered locally: the
// node is published with a nil parent, or with its parent chain cut short at
// the failed lookup, and the error is reported as a warning.
type ParentLookupError struct {
	ID  string
	Err error
}

func (e *ParentLookupError) Error() string {
	return fmt.Sprintf("parent lookup for %q failed: %v", e.ID, e.Err)
}

func (e *ParentLookupError) Unwrap() error {
	return e.Err
}
