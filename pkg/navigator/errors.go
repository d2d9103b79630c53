package navigator

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for a position outside [0, Len()).
	ErrOutOfRange = errors.New("position out of range")
	// ErrFetchFailed is returned by every future of a batch whose fetch failed.
	ErrFetchFailed = errors.New("segment fetch failed")
	// ErrMissingIdentifier is returned when the server response omitted a
	// requested identifier. Siblings in the same batch are unaffected.
	ErrMissingIdentifier = errors.New("segment missing from fetch response")
	// ErrNoFurtherRecord is returned when stepping past either end.
	ErrNoFurtherRecord = errors.New("no further record")
)

func outOfRange(i, n int) error {
	return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, n)
}
