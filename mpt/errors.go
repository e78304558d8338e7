package mpt

import "errors"

// Error kinds a caller may observe (spec §7). Store I/O errors propagate
// as-is and are not wrapped in these sentinels.
var (
	// ErrMissingNode is returned when a referenced keccak256 hash is absent
	// from the store. Fatal to the current operation.
	ErrMissingNode = errors.New("mpt: referenced node hash not found in store")

	// ErrCorruptEncoding is returned when decoded bytes do not parse as a
	// valid node, or a decoded node's re-computed hash does not match the
	// key it was fetched under.
	ErrCorruptEncoding = errors.New("mpt: corrupt node encoding")
)
