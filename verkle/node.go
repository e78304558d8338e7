package verkle

import (
	"fmt"

	"github.com/holiman/uint256"

	"dualtrie/store"
	"dualtrie/verkle/pedersen"
)

const stemSize = 31
const nodeWidth = pedersen.NodeWidth

// TrieKey is a 32-byte trie address: a 31-byte stem plus a 1-byte leaf
// sub-index (spec §6.5 / original stem.rs).
type TrieKey [32]byte

func (k TrieKey) stem() [stemSize]byte {
	var s [stemSize]byte
	copy(s[:], k[:stemSize])
	return s
}

func (k TrieKey) last() byte { return k[31] }

// Node is one of the Verkle node states of spec §4.6: Empty (nil), Leaf,
// Branch, or Commitment (an unresolved reference, analogous to MPT's Hash).
type Node interface {
	node()
}

func (*LeafNode) node()       {}
func (*BranchNode) node()     {}
func (*CommitmentNode) node() {}

// CommitmentNode is an unresolved reference to a node stored by its
// commitment's scalar-field representation.
type CommitmentNode struct {
	Commitment pedersen.Scalar
}

// LeafNode holds one account-storage stem's sparse 256-slot value map, plus
// the running C1/C2 commitments over its low/high halves and the constant
// term binding the stem (spec §4.6, original nodes/leaf.rs).
type LeafNode struct {
	Stem   [stemSize]byte
	Values map[byte]*uint256.Int

	c1     pedersen.Element
	c2     pedersen.Element
	constC pedersen.Element

	cached    *pedersen.Scalar
	committer *pedersen.Committer
}

var twoPow128 = pedersen.FrFromLEBytes(func() []byte {
	b := make([]byte, 17)
	b[16] = 1
	return b
}())

// NewLeafNode creates an empty leaf for stem. c1/c2 start at the group
// identity, the correct zero for MSM accumulation (spec §4.8) — the bare Go
// zero value of an Element is not the curve's identity point.
func NewLeafNode(stem [stemSize]byte, committer *pedersen.Committer) *LeafNode {
	constC := committer.CommitSparse(map[int]pedersen.Scalar{
		0: pedersen.ScalarFromUint64(1),
		1: pedersen.FrFromLEBytes(stem[:]),
	})
	return &LeafNode{
		Stem:      stem,
		Values:    make(map[byte]*uint256.Int),
		c1:        pedersen.Identity(),
		c2:        pedersen.Identity(),
		constC:    constC,
		committer: committer,
	}
}

// NewLeafForKeyValue creates a leaf for key's stem with key's single slot
// already set to value.
func NewLeafForKeyValue(key TrieKey, value *uint256.Int, committer *pedersen.Committer) *LeafNode {
	l := NewLeafNode(key.stem(), committer)
	l.Set(key.last(), value)
	return l
}

// Get returns the value at index, if set.
func (l *LeafNode) Get(index byte) (*uint256.Int, bool) {
	v, ok := l.Values[index]
	return v, ok
}

// Set writes value at index, incrementally updating C1/C2 by the delta
// between the new and old split values (spec §4.8).
func (l *LeafNode) Set(index byte, value *uint256.Int) {
	old := l.Values[index]
	l.Values[index] = value

	newLow, newHigh := valueLowHigh16(value)
	oldLow, oldHigh := pedersen.ScalarFromUint64(0), pedersen.ScalarFromUint64(0)
	if old != nil {
		oldLow, oldHigh = valueLowHigh16(old)
	}

	lowIndex := int(index) % (nodeWidth / 2) * 2
	highIndex := lowIndex + 1

	lowDelta := l.committer.ScalarMul(lowIndex, pedersen.SubScalar(newLow, oldLow))
	highDelta := l.committer.ScalarMul(highIndex, pedersen.SubScalar(newHigh, oldHigh))
	var diff pedersen.Element
	diff.Add(&lowDelta, &highDelta)

	if int(index) < nodeWidth/2 {
		l.c1.Add(&l.c1, &diff)
	} else {
		l.c2.Add(&l.c2, &diff)
	}
	l.cached = nil
}

// valueLowHigh16 splits a 32-byte little-endian value into two 16-byte
// halves, biasing the low half by 2^128 to distinguish "present" from
// "absent" (spec §4.8).
func valueLowHigh16(value *uint256.Int) (pedersen.Scalar, pedersen.Scalar) {
	le := value.Bytes32()
	reverseBytes(&le)
	low := pedersen.FrFromLEBytes(le[0:16])
	high := pedersen.FrFromLEBytes(le[16:32])
	return pedersen.AddScalar(low, twoPow128), high
}

func reverseBytes(b *[32]byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Commitment returns this leaf's scalar-field commitment, caching it until
// the next Set invalidates the cache.
func (l *LeafNode) Commitment() pedersen.Scalar {
	if l.cached != nil {
		return *l.cached
	}
	c1Scalar := pedersen.MapToScalarField(&l.c1)
	c2Scalar := pedersen.MapToScalarField(&l.c2)
	element := l.committer.CommitSparse(map[int]pedersen.Scalar{
		2: c1Scalar,
		3: c2Scalar,
	})
	var full pedersen.Element
	full.Add(&l.constC, &element)
	result := pedersen.MapToScalarField(&full)
	l.cached = &result
	return result
}

// BranchNode holds nodeWidth child slots and the running Pedersen
// commitment over their per-index commitments (spec §4.6, original
// nodes/branch.rs).
type BranchNode struct {
	Children  [nodeWidth]Node
	cp        pedersen.Element
	committer *pedersen.Committer
}

// NewBranchNode creates an empty branch, its running commitment starting at
// the group identity (the same convention NewLeafNode uses for c1/c2).
func NewBranchNode(committer *pedersen.Committer) *BranchNode {
	return &BranchNode{cp: pedersen.Identity(), committer: committer}
}

// Commitment returns this branch's scalar-field commitment.
func (b *BranchNode) Commitment() pedersen.Scalar {
	return pedersen.MapToScalarField(&b.cp)
}

// set installs node at index, updating cp by the delta between the new and
// old child commitments.
func (b *BranchNode) set(index int, n Node) {
	pre := nodeCommitment(b.Children[index])
	b.Children[index] = n
	post := nodeCommitment(n)

	delta := b.committer.ScalarMul(index, pedersen.SubScalar(post, pre))
	b.cp.Add(&b.cp, &delta)
}

// nodeCommitment returns n's scalar commitment: zero for Empty (nil).
func nodeCommitment(n Node) pedersen.Scalar {
	switch node := n.(type) {
	case nil:
		return pedersen.ScalarFromUint64(0)
	case *LeafNode:
		return node.Commitment()
	case *BranchNode:
		return node.Commitment()
	case *CommitmentNode:
		return node.Commitment
	default:
		panic(fmt.Sprintf("verkle: unknown node type %T", n))
	}
}

// get performs the iterative traversal of spec §4.7, resolving Commitment
// references against db as it descends.
func get(root *Node, key TrieKey, db store.Store, committer *pedersen.Committer) (*uint256.Int, error) {
	node := root
	depth := 0
	for {
		switch n := (*node).(type) {
		case nil:
			return nil, nil

		case *BranchNode:
			idx := int(key[depth])
			node = &n.Children[idx]
			depth++

		case *LeafNode:
			if n.Stem != key.stem() {
				return nil, nil
			}
			v, ok := n.Get(key.last())
			if !ok {
				return nil, nil
			}
			return v, nil

		case *CommitmentNode:
			if err := resolve(node, db, committer); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("verkle: unknown node type %T", n)
		}
	}
}

// insert performs the in-place recursive mutation of spec §4.8: unlike the
// MPT's purely functional rewrite, a Verkle insert mutates nodeSlot and the
// commitments along the path it touches (a REDESIGN-sanctioned divergence,
// since incremental commitment maintenance is the whole point of the
// structure).
func insert(nodeSlot *Node, depth int, key TrieKey, value *uint256.Int, db store.Store, committer *pedersen.Committer) error {
	switch n := (*nodeSlot).(type) {
	case nil:
		*nodeSlot = NewLeafForKeyValue(key, value, committer)
		return nil

	case *BranchNode:
		idx := int(key[depth])
		pre := nodeCommitment(n.Children[idx])
		if err := insert(&n.Children[idx], depth+1, key, value, db, committer); err != nil {
			return err
		}
		post := nodeCommitment(n.Children[idx])
		delta := n.committer.ScalarMul(idx, pedersen.SubScalar(post, pre))
		n.cp.Add(&n.cp, &delta)
		return nil

	case *LeafNode:
		if n.Stem == key.stem() {
			n.Set(key.last(), value)
			return nil
		}
		branch := NewBranchNode(committer)
		branch.set(int(n.Stem[depth]), n)
		*nodeSlot = branch
		return insert(nodeSlot, depth, key, value, db, committer)

	case *CommitmentNode:
		if err := resolve(nodeSlot, db, committer); err != nil {
			return err
		}
		return insert(nodeSlot, depth, key, value, db, committer)

	default:
		return fmt.Errorf("verkle: unknown node type %T", n)
	}
}

// resolve loads the node a CommitmentNode refers to, verifies its
// recomputed commitment matches, and replaces *nodeSlot with the decoded
// node.
func resolve(nodeSlot *Node, db store.Store, committer *pedersen.Committer) error {
	ref := (*nodeSlot).(*CommitmentNode)
	key := pedersen.ScalarBytesLE(ref.Commitment)
	encoded, ok, err := db.Read(string(key[:]))
	if err != nil {
		return fmt.Errorf("verkle: reading node: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: commitment scalar missing from store", ErrMissingNode)
	}
	decoded, err := decodeNode(encoded, committer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}
	got := nodeCommitment(decoded)
	if got != ref.Commitment {
		return fmt.Errorf("%w: node re-commits to a different scalar", ErrCorruptEncoding)
	}
	*nodeSlot = decoded
	return nil
}
