package verkle

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/holiman/uint256"

	"dualtrie/verkle/pedersen"
)

const (
	sszTagLeaf   = 0
	sszTagBranch = 1

	presenceBitsetBytes = nodeWidth / 8
)

// encodeNode SSZ-encodes a Leaf or Branch node (spec §4.7/§6.4): a tag byte,
// a nodeWidth-bit presence bitset (one bit per slot, LSB-first within each
// byte per bits-and-blooms/bitset's own wire format), then, for each set
// bit in ascending index order, a Leaf's 32-byte little-endian value or a
// Branch's 32-byte little-endian commitment scalar. The stem precedes the
// bitset for a Leaf. Bounding the payload by a presence bitset rather than
// a per-entry index byte is the standard SSZ sparse-list idiom.
func encodeNode(n Node) ([]byte, error) {
	switch node := n.(type) {
	case *LeafNode:
		present := bitset.New(nodeWidth)
		for idx := range node.Values {
			present.Set(uint(idx))
		}
		buf := make([]byte, 0, 1+stemSize+presenceBitsetBytes+len(node.Values)*32)
		buf = append(buf, sszTagLeaf)
		buf = append(buf, node.Stem[:]...)
		buf = append(buf, marshalPresence(present)...)

		for idx := uint(0); idx < nodeWidth; idx++ {
			if !present.Test(idx) {
				continue
			}
			le := node.Values[byte(idx)].Bytes32()
			reverseBytes(&le)
			buf = append(buf, le[:]...)
		}
		return buf, nil

	case *BranchNode:
		present := bitset.New(nodeWidth)
		for idx := 0; idx < nodeWidth; idx++ {
			if node.Children[idx] != nil {
				present.Set(uint(idx))
			}
		}
		buf := make([]byte, 0, 1+presenceBitsetBytes+256*32)
		buf = append(buf, sszTagBranch)
		buf = append(buf, marshalPresence(present)...)

		for idx := uint(0); idx < nodeWidth; idx++ {
			if !present.Test(idx) {
				continue
			}
			commitment := nodeCommitment(node.Children[idx])
			le := pedersen.ScalarBytesLE(commitment)
			buf = append(buf, le[:]...)
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("verkle: cannot encode node type %T", n)
	}
}

// marshalPresence renders a nodeWidth-bit set to its fixed-width byte form.
func marshalPresence(b *bitset.BitSet) []byte {
	buf := make([]byte, presenceBitsetBytes)
	words := b.Bytes()
	for i, word := range words {
		off := i * 8
		if off >= presenceBitsetBytes {
			break
		}
		for j := 0; j < 8 && off+j < presenceBitsetBytes; j++ {
			buf[off+j] = byte(word >> (8 * j))
		}
	}
	return buf
}

// unmarshalPresence is the inverse of marshalPresence.
func unmarshalPresence(buf []byte) *bitset.BitSet {
	b := bitset.New(nodeWidth)
	for i, v := range buf {
		for bit := 0; bit < 8; bit++ {
			if v&(1<<uint(bit)) != 0 {
				b.Set(uint(i*8 + bit))
			}
		}
	}
	return b
}

// decodeNode is the inverse of encodeNode.
func decodeNode(encoded []byte, committer *pedersen.Committer) (Node, error) {
	if len(encoded) == 0 {
		return nil, fmt.Errorf("verkle: empty node encoding")
	}
	tag, payload := encoded[0], encoded[1:]

	switch tag {
	case sszTagLeaf:
		if len(payload) < stemSize+presenceBitsetBytes {
			return nil, fmt.Errorf("verkle: leaf encoding too short")
		}
		var stem [stemSize]byte
		copy(stem[:], payload[:stemSize])
		present := unmarshalPresence(payload[stemSize : stemSize+presenceBitsetBytes])
		rest := payload[stemSize+presenceBitsetBytes:]

		leaf := NewLeafNode(stem, committer)
		pos := 0
		for idx := uint(0); idx < nodeWidth; idx++ {
			if !present.Test(idx) {
				continue
			}
			if pos+32 > len(rest) {
				return nil, fmt.Errorf("verkle: malformed leaf value list")
			}
			var le [32]byte
			copy(le[:], rest[pos:pos+32])
			reverseBytes(&le)
			leaf.Set(byte(idx), new(uint256.Int).SetBytes(le[:]))
			pos += 32
		}
		return leaf, nil

	case sszTagBranch:
		if len(payload) < presenceBitsetBytes {
			return nil, fmt.Errorf("verkle: branch encoding too short")
		}
		present := unmarshalPresence(payload[:presenceBitsetBytes])
		rest := payload[presenceBitsetBytes:]

		branch := NewBranchNode(committer)
		pos := 0
		for idx := uint(0); idx < nodeWidth; idx++ {
			if !present.Test(idx) {
				continue
			}
			if pos+32 > len(rest) {
				return nil, fmt.Errorf("verkle: malformed branch commitment list")
			}
			var le [32]byte
			copy(le[:], rest[pos:pos+32])
			scalar := pedersen.FrFromLEBytes(le[:])
			branch.set(int(idx), &CommitmentNode{Commitment: scalar})
			pos += 32
		}
		return branch, nil

	default:
		return nil, fmt.Errorf("verkle: unknown ssz tag %d", tag)
	}
}
