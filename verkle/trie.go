// Package verkle implements the 256-ary Verkle trie engine of spec §3.4 and
// §4.5-§4.8: Pedersen-commitment nodes over the banderwagon curve, with
// lazy Commitment-node resolution against a store.Store and incremental
// commitment maintenance on insert.
package verkle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"dualtrie/store"
	"dualtrie/verkle/account"
	"dualtrie/verkle/pedersen"
)

// Trie is a single-owner handle over one Verkle root (spec §5).
type Trie struct {
	root      Node
	db        store.Store
	committer *pedersen.Committer
}

// New creates an empty trie backed by db, building a fresh Committer over
// the library's CRS. The root always starts as a persistent empty Branch
// (original implementation's trie.rs: `root: Node::new()`), never a bare
// leaf — a trie holding a single stem still roots at a Branch whose one
// committed child is that leaf.
func New(db store.Store) (*Trie, error) {
	committer, err := pedersen.NewCommitter()
	if err != nil {
		return nil, err
	}
	return &Trie{root: NewBranchNode(committer), db: db, committer: committer}, nil
}

// NewWithRoot reopens a trie whose root commitment scalar is known, without
// eagerly resolving it.
func NewWithRoot(db store.Store, root pedersen.Scalar) (*Trie, error) {
	t, err := New(db)
	if err != nil {
		return nil, err
	}
	if root != pedersen.ScalarFromUint64(0) {
		t.root = &CommitmentNode{Commitment: root}
	}
	return t, nil
}

// Get returns the value at key, if any (spec §4.7).
func (t *Trie) Get(key TrieKey) (*uint256.Int, error) {
	return get(&t.root, key, t.db, t.committer)
}

// Insert writes value at key, mutating the running commitments along the
// path it touches (spec §4.8).
func (t *Trie) Insert(key TrieKey, value *uint256.Int) error {
	return insert(&t.root, 0, key, value, t.db, t.committer)
}

// Commit materializes the tree bottom-up and returns the root's scalar
// commitment (spec §4.7's commit). An empty trie's commitment is the
// identity element's scalar-field image.
func (t *Trie) Commit() (pedersen.Scalar, error) {
	return commit(&t.root, t.db, t.committer)
}

// commit recurses over nodeSlot bottom-up: Branch children are committed
// first, then the node itself is SSZ-encoded and written to the store
// keyed by its commitment scalar, and *nodeSlot becomes a CommitmentNode.
func commit(nodeSlot *Node, db store.Store, committer *pedersen.Committer) (pedersen.Scalar, error) {
	switch n := (*nodeSlot).(type) {
	case nil:
		return pedersen.ScalarFromUint64(0), nil

	case *BranchNode:
		for i := range n.Children {
			if _, err := commit(&n.Children[i], db, committer); err != nil {
				return pedersen.Scalar{}, err
			}
		}
		c := n.Commitment()
		encoded, err := encodeNode(n)
		if err != nil {
			return pedersen.Scalar{}, err
		}
		key := pedersen.ScalarBytesLE(c)
		if err := db.Write(string(key[:]), encoded); err != nil {
			return pedersen.Scalar{}, fmt.Errorf("verkle: writing branch: %w", err)
		}
		*nodeSlot = &CommitmentNode{Commitment: c}
		return c, nil

	case *LeafNode:
		c := n.Commitment()
		encoded, err := encodeNode(n)
		if err != nil {
			return pedersen.Scalar{}, err
		}
		key := pedersen.ScalarBytesLE(c)
		if err := db.Write(string(key[:]), encoded); err != nil {
			return pedersen.Scalar{}, fmt.Errorf("verkle: writing leaf: %w", err)
		}
		*nodeSlot = &CommitmentNode{Commitment: c}
		return c, nil

	case *CommitmentNode:
		return n.Commitment, nil

	default:
		return pedersen.Scalar{}, fmt.Errorf("verkle: unknown node type %T", n)
	}
}

// CreateEOA inserts the leaf slots of a plain externally-owned account
// (spec §6.5, original implementation's trie.rs::create_eoa): version,
// balance, nonce, and the keccak256 hash of empty code.
func (t *Trie) CreateEOA(address [20]byte, balance *uint256.Int, nonce uint64) error {
	layout := account.NewLayout(address, t.committer)
	emptyCodeHash := crypto.Keccak256(nil)

	if err := t.Insert(TrieKey(layout.VersionKey()), new(uint256.Int)); err != nil {
		return err
	}
	if err := t.Insert(TrieKey(layout.BalanceKey()), balance); err != nil {
		return err
	}
	if err := t.Insert(TrieKey(layout.NonceKey()), uint256.NewInt(nonce)); err != nil {
		return err
	}
	return t.Insert(TrieKey(layout.CodeHashKey()), uint256FromLEBytes(emptyCodeHash))
}

// CreateSC inserts the leaf slots of a smart-contract account: the same
// fields as CreateEOA plus the code's keccak256 hash, its length, and its
// PUSH-aware 31-byte chunking (original implementation's trie.rs::create_sc).
func (t *Trie) CreateSC(address [20]byte, balance *uint256.Int, nonce uint64, code []byte) error {
	layout := account.NewLayout(address, t.committer)

	if err := t.Insert(TrieKey(layout.VersionKey()), new(uint256.Int)); err != nil {
		return err
	}
	if err := t.Insert(TrieKey(layout.BalanceKey()), balance); err != nil {
		return err
	}
	if err := t.Insert(TrieKey(layout.NonceKey()), uint256.NewInt(nonce)); err != nil {
		return err
	}
	codeHash := crypto.Keccak256(code)
	if err := t.Insert(TrieKey(layout.CodeHashKey()), uint256FromLEBytes(codeHash)); err != nil {
		return err
	}
	if err := t.Insert(TrieKey(layout.CodeSizeKey()), uint256.NewInt(uint64(len(code)))); err != nil {
		return err
	}

	for _, chunk := range account.ChunkifyCodeInto(layout, code) {
		value := new(uint256.Int).SetBytes(reversedCopy(chunk.Value))
		if err := t.Insert(TrieKey(chunk.Key), value); err != nil {
			return err
		}
	}
	return nil
}

func reversedCopy(b [32]byte) []byte {
	out := make([]byte, 32)
	for i := range b {
		out[i] = b[31-i]
	}
	return out
}

// uint256FromLEBytes treats digest (a keccak256 hash, at most 32 bytes) as a
// little-endian integer, matching the original implementation's
// TrieValue::from_le_bytes(keccak256(...).0) — the reverse of uint256's own
// SetBytes, which is big-endian.
func uint256FromLEBytes(digest []byte) *uint256.Int {
	var be [32]byte
	n := len(digest)
	if n > 32 {
		n = 32
	}
	for i := 0; i < n; i++ {
		be[31-i] = digest[i]
	}
	return new(uint256.Int).SetBytes(be[:])
}
