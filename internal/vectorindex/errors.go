package vectorindex

import (
	"errors"
	"fmt"
)

// DimensionMismatchError reports a vector whose length does not match the
// dimensionality an index has already established. It signals corrupted
// persisted data or an embedding profile whose model changed size, so it
// is never swallowed by callers.
type DimensionMismatchError struct {
	OwnerEntityID string
	Expected      int
	Actual        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector index %q: dimension mismatch: expected %d, got %d",
		e.OwnerEntityID, e.Expected, e.Actual)
}

// IsDimensionMismatch reports whether err is or wraps a DimensionMismatchError.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}

// ErrEmptyVector is returned when a zero-length vector is added.
var ErrEmptyVector = errors.New("vector must not be empty")
