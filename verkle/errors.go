package verkle

import "errors"

// Error kinds a caller may observe (spec §7), mirroring the MPT engine's.
var (
	// ErrMissingNode is returned when a referenced commitment scalar is
	// absent from the store.
	ErrMissingNode = errors.New("verkle: referenced node commitment not found in store")

	// ErrCorruptEncoding is returned when decoded bytes do not parse as a
	// valid node, or a decoded node's re-computed commitment does not equal
	// the scalar it was fetched under.
	ErrCorruptEncoding = errors.New("verkle: corrupt node encoding")
)
