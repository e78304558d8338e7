// Package nibbles implements the packed/unpacked nibble path representation
// and the compact (hex-prefix) codec used by the Merkle Patricia trie.
package nibbles

import (
	"errors"
	"fmt"
)

// Nibble is a single 4-bit value (0..=15).
type Nibble = byte

const maxNibble = 0x0F

var (
	// ErrInvalidNibble is returned when a byte value >= 16 is used where a
	// nibble is required.
	ErrInvalidNibble = errors.New("nibbles: invalid nibble value")

	// ErrInvalidCompactPath is returned when a compact-encoded path has a
	// malformed header: an even-length path whose low nibble is non-zero, or
	// flags outside the 2-bit range.
	ErrInvalidCompactPath = errors.New("nibbles: invalid compact path header")
)

const (
	leafFlag   = 0b10
	oddLenFlag = 0b01
)

// Path is an ordered sequence of nibbles, one nibble per byte.
type Path []Nibble

// New validates that every element of raw is a nibble (< 16) and returns it
// as a Path.
func New(raw []byte) (Path, error) {
	for _, b := range raw {
		if b > maxNibble {
			return nil, fmt.Errorf("%w: %d", ErrInvalidNibble, b)
		}
	}
	p := make(Path, len(raw))
	copy(p, raw)
	return p, nil
}

// Unpack converts a packed byte sequence of length N into 2N nibbles,
// high nibble first.
func Unpack(packed []byte) Path {
	p := make(Path, len(packed)*2)
	for i, b := range packed {
		p[i*2] = b >> 4
		p[i*2+1] = b & maxNibble
	}
	return p
}

// Pack converts an even-length nibble path back into packed bytes. It panics
// if len(p) is odd, since packed byte sequences always represent an even
// number of nibbles; callers working with arbitrary-length paths should use
// ToCompact instead.
func Pack(p Path) []byte {
	if len(p)%2 != 0 {
		panic("nibbles: Pack requires an even-length path")
	}
	out := make([]byte, len(p)/2)
	for i := range out {
		out[i] = p[i*2]<<4 | p[i*2+1]
	}
	return out
}

// CommonPrefix returns the length of the longest shared prefix of a and b.
func CommonPrefix(a, b Path) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// ToCompact encodes p using the hex-prefix scheme: a header byte carrying
// the is-leaf and odd-length flags (plus, for odd-length paths, the first
// nibble), followed by the remaining nibbles packed two per byte.
func ToCompact(p Path, isLeaf bool) []byte {
	var flags byte
	if isLeaf {
		flags = leafFlag
	}

	var firstNibble Nibble
	start := 0
	if len(p)%2 != 0 {
		flags |= oddLenFlag
		firstNibble = p[0]
		start = 1
	}

	out := make([]byte, 0, 1+len(p)/2)
	out = append(out, flags<<4|firstNibble)
	for i := start; i < len(p); i += 2 {
		out = append(out, p[i]<<4|p[i+1])
	}
	return out
}

// FromCompact is the inverse of ToCompact. It rejects malformed headers
// rather than silently coercing them (an even-length header whose low
// nibble is non-zero, or flag bits above the 2-bit range).
func FromCompact(encoded []byte) (Path, bool, error) {
	if len(encoded) == 0 {
		return nil, false, fmt.Errorf("%w: empty input", ErrInvalidCompactPath)
	}

	first := encoded[0]
	flags := first >> 4
	firstNibble := first & maxNibble

	if flags > (leafFlag | oddLenFlag) {
		return nil, false, fmt.Errorf("%w: flags %#x out of range", ErrInvalidCompactPath, flags)
	}

	isLeaf := flags&leafFlag != 0
	oddLen := flags&oddLenFlag != 0

	var p Path
	if oddLen {
		p = make(Path, 0, 1+2*(len(encoded)-1))
		p = append(p, firstNibble)
	} else {
		if firstNibble != 0 {
			return nil, false, fmt.Errorf("%w: even length with non-zero low nibble", ErrInvalidCompactPath)
		}
		p = make(Path, 0, 2*(len(encoded)-1))
	}

	for _, b := range encoded[1:] {
		p = append(p, b>>4, b&maxNibble)
	}
	return p, isLeaf, nil
}
