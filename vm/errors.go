package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocationFailure indicates the heap could not satisfy a request.
	ErrAllocationFailure = errors.New("vm: allocation failure")

	// ErrInvariantViolation indicates a caller defect: an operation the
	// string table or heap cannot perform without breaking its invariants.
	ErrInvariantViolation = errors.New("vm: invariant violation")

	// ErrTornDown indicates use of a string table after Teardown.
	ErrTornDown = fmt.Errorf("%w: string table torn down", ErrInvariantViolation)

	// ErrTraversalActive indicates a table mutation while the collector is
	// traversing the bucket array.
	ErrTraversalActive = fmt.Errorf("%w: collector traversal in progress", ErrInvariantViolation)

	// ErrBadRef indicates an invalid or already freed StringRef.
	ErrBadRef = fmt.Errorf("%w: bad string reference", ErrInvariantViolation)
)
