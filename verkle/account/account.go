// Package account derives the per-account tree-key layout over a Verkle
// trie (spec §6.5), grounded on the original implementation's
// verkle/src/account.rs. The leaf-key constants below are the EIP-6800
// values the original implementation uses, filtered out of the retrieved
// source (its constants.rs was not part of the retrieval pack) and
// reconstructed from the one literal scalar visible in tree_key
// (2 + 256*64) plus domain-standard offsets.
package account

import (
	"github.com/holiman/uint256"

	"dualtrie/verkle/pedersen"
)

const (
	VersionLeafKey    = 0
	BalanceLeafKey    = 1
	NonceLeafKey      = 2
	CodeHashLeafKey   = 3
	CodeSizeLeafKey   = 4
	HeaderStorageOffset = 64
	CodeOffset          = 128
	NodeWidth           = pedersen.NodeWidth
)

// MainStorageOffset is 2^248, the start of the "expanded" storage-slot
// address space (spec §6.5).
var MainStorageOffset = new(uint256.Int).Lsh(uint256.NewInt(1), 248)

// StemSize is the fixed stem length, the first 31 bytes of a TrieKey.
const StemSize = 31

// Layout derives the family of tree keys belonging to one account address.
type Layout struct {
	address    [20]byte
	baseStem   [StemSize]byte
	committer  *pedersen.Committer
}

// NewLayout builds a Layout for address, deriving its base storage stem
// (tree_key(address, 0, 0)'s first 31 bytes) once up front.
func NewLayout(address [20]byte, committer *pedersen.Committer) Layout {
	key := treeKey(address, new(uint256.Int), 0, committer)
	var stem [StemSize]byte
	copy(stem[:], key[:StemSize])
	return Layout{address: address, baseStem: stem, committer: committer}
}

func (l Layout) keyWithLastByte(last byte) [32]byte {
	var key [32]byte
	copy(key[:StemSize], l.baseStem[:])
	key[31] = last
	return key
}

func (l Layout) VersionKey() [32]byte  { return l.keyWithLastByte(VersionLeafKey) }
func (l Layout) BalanceKey() [32]byte  { return l.keyWithLastByte(BalanceLeafKey) }
func (l Layout) NonceKey() [32]byte    { return l.keyWithLastByte(NonceLeafKey) }
func (l Layout) CodeHashKey() [32]byte { return l.keyWithLastByte(CodeHashLeafKey) }
func (l Layout) CodeSizeKey() [32]byte { return l.keyWithLastByte(CodeSizeLeafKey) }

// StorageSlotKey derives the tree key for a storage slot, splitting between
// the header-offset region and the expanded main-storage region the same
// way the original implementation's storage_slot_key does.
func (l Layout) StorageSlotKey(storageKey *uint256.Int) [32]byte {
	var pos uint256.Int
	threshold := new(uint256.Int).SubUint64(uint256.NewInt(CodeOffset), HeaderStorageOffset)
	if storageKey.Lt(threshold) {
		pos.AddUint64(storageKey, HeaderStorageOffset)
	} else {
		pos.Add(MainStorageOffset, storageKey)
	}
	return l.positionedKey(&pos)
}

// CodeKey derives the tree key for code chunk chunkID.
func (l Layout) CodeKey(chunkID uint64) [32]byte {
	pos := new(uint256.Int).AddUint64(uint256.NewInt(CodeOffset), chunkID)
	return l.positionedKey(pos)
}

func (l Layout) positionedKey(pos *uint256.Int) [32]byte {
	width := uint256.NewInt(NodeWidth)
	treeIndex := new(uint256.Int).Div(pos, width)
	subIndex := new(uint256.Int).Mod(pos, width)
	return treeKey(l.address, treeIndex, byte(subIndex.Uint64()), l.committer)
}

// CodeChunk is one (key, value) pair produced by splitting a contract's
// bytecode into 31-byte chunks.
type CodeChunk struct {
	Key   [32]byte
	Value [32]byte
}

const (
	pushOffset = 95
	push1      = pushOffset + 1
	push32     = pushOffset + 32
)

// ChunkifyCodeInto splits code into 31-byte chunks and derives each chunk's
// tree key via layout.
func ChunkifyCodeInto(layout Layout, code []byte) []CodeChunk {
	var chunks []CodeChunk
	var remainingPushData byte

	for chunkID := 0; chunkID*31 < len(code) || (len(code) == 0 && chunkID == 0); chunkID++ {
		start := chunkID * 31
		if start >= len(code) {
			break
		}
		end := start + 31
		if end > len(code) {
			end = len(code)
		}
		chunk := code[start:end]

		var value [32]byte
		if remainingPushData > 31 {
			value[0] = 31
		} else {
			value[0] = remainingPushData
		}
		copy(value[1:], chunk)

		chunks = append(chunks, CodeChunk{Key: layout.CodeKey(uint64(chunkID)), Value: value})

		for _, b := range chunk {
			if remainingPushData > 0 {
				remainingPushData--
			} else if b >= push1 && b <= push32 {
				remainingPushData = b - pushOffset
			}
		}
	}
	return chunks
}

// treeKey is the Pedersen-commitment tree-key derivation of spec §6.5 and
// the original implementation's account.rs::tree_key: commit to
// [2+256*64, addr_lo, addr_hi, tree_index_lo, tree_index_hi], map the
// commitment to the scalar field, serialize it little-endian, then
// overwrite the last byte with subIndex.
func treeKey(address [20]byte, treeIndex *uint256.Int, subIndex byte, committer *pedersen.Committer) [32]byte {
	var addressBytes [32]byte
	copy(addressBytes[12:], address[:])

	treeIndexLE := treeIndex.Bytes32()
	reverse(&treeIndexLE)

	scalars := []pedersen.Scalar{
		pedersen.ScalarFromUint64(2 + 256*64),
		pedersen.FrFromLEBytes(addressBytes[:16]),
		pedersen.FrFromLEBytes(addressBytes[16:]),
		pedersen.FrFromLEBytes(treeIndexLE[:16]),
		pedersen.FrFromLEBytes(treeIndexLE[16:]),
	}

	commitment := committer.CommitLagrange(scalars)
	hashCommitment := pedersen.MapToScalarField(&commitment)

	key := pedersen.ScalarBytesLE(hashCommitment)
	key[31] = subIndex
	return key
}

func reverse(b *[32]byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
