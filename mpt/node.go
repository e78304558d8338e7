package mpt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"dualtrie/nibbles"
	"dualtrie/store"
)

// Node is one of the five MPT node variants from spec §3.2. A nil Node
// value denotes the Nil variant (the empty trie, or an empty branch slot).
type Node interface {
	node()
}

// Leaf holds the remaining nibbles from this node to the terminal, and the
// value stored there.
type Leaf struct {
	Path  nibbles.Path
	Value []byte
}

// Extension holds a non-empty shared-nibble prefix and a child that is
// always a Branch (never another Extension, never a Leaf — spec §3.2).
type Extension struct {
	Path  nibbles.Path
	Child Node
}

// Branch holds 16 child slots (any of which may be Nil) plus an optional
// value stored when a key terminates exactly at this branch.
type Branch struct {
	Children [16]Node
	Value    []byte
}

// Hash is a placeholder standing for a yet-unloaded node whose keccak256 is
// Hash. It is resolved against a store.Store on first touch.
type Hash struct {
	Hash common.Hash
}

func (*Leaf) node()      {}
func (*Extension) node() {}
func (*Branch) node()    {}
func (*Hash) node()      {}

func hasValue(v []byte) bool { return len(v) > 0 }

// resolve loads the node a Hash reference points to, verifying its
// re-computed keccak256 equals the hash it was fetched under, and returns
// the decoded (non-Hash) node.
func resolve(h *Hash, db store.Store) (Node, error) {
	encoded, ok, err := db.Read(string(h.Hash.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("mpt: reading node %x: %w", h.Hash, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrMissingNode, h.Hash)
	}
	if got := keccak(encoded); got != h.Hash {
		return nil, fmt.Errorf("%w: node %x re-hashes to %x", ErrCorruptEncoding, h.Hash, got)
	}
	n, err := decodeNode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}
	if _, isHash := n.(*Hash); isHash {
		return nil, fmt.Errorf("%w: node %x decodes to another Hash node", ErrCorruptEncoding, h.Hash)
	}
	return n, nil
}

// insert performs the purely functional structural rewrite of spec §4.2 and
// returns the new node to install in the caller's slot.
func insert(n Node, path nibbles.Path, value []byte, db store.Store) (Node, error) {
	switch node := n.(type) {
	case nil:
		return &Leaf{Path: append(nibbles.Path{}, path...), Value: value}, nil

	case *Leaf:
		if pathsEqual(node.Path, path) {
			return &Leaf{Path: node.Path, Value: value}, nil
		}
		return splitLeaf(node.Path, node.Value, path, value), nil

	case *Extension:
		if hasPrefix(path, node.Path) {
			child, err := insert(node.Child, path[len(node.Path):], value, db)
			if err != nil {
				return nil, err
			}
			return &Extension{Path: node.Path, Child: child}, nil
		}
		return splitExtension(node.Path, node.Child, path, value), nil

	case *Branch:
		newBranch := &Branch{Children: node.Children, Value: node.Value}
		if len(path) == 0 {
			newBranch.Value = value
			return newBranch, nil
		}
		child, err := insert(node.Children[path[0]], path[1:], value, db)
		if err != nil {
			return nil, err
		}
		newBranch.Children[path[0]] = child
		return newBranch, nil

	case *Hash:
		resolved, err := resolve(node, db)
		if err != nil {
			return nil, err
		}
		return insert(resolved, path, value, db)

	default:
		return nil, fmt.Errorf("mpt: unknown node type %T", n)
	}
}

// splitLeaf implements the Leaf case of spec §4.2 when the existing leaf's
// path and the new path diverge.
func splitLeaf(oldPath nibbles.Path, oldValue []byte, newPath nibbles.Path, newValue []byte) Node {
	k := nibbles.CommonPrefix(oldPath, newPath)
	branch := &Branch{}
	placeResidual(branch, oldPath[k:], oldValue)
	placeResidual(branch, newPath[k:], newValue)
	return wrapExtension(newPath[:k], branch)
}

// splitExtension implements the Extension case of spec §4.2 when the path
// diverges partway through the extension's shared prefix.
func splitExtension(extPath nibbles.Path, child Node, newPath nibbles.Path, newValue []byte) Node {
	k := nibbles.CommonPrefix(extPath, newPath)
	branch := &Branch{}

	residual := extPath[k+1:]
	if len(residual) == 0 {
		branch.Children[extPath[k]] = child
	} else {
		branch.Children[extPath[k]] = &Extension{Path: append(nibbles.Path{}, residual...), Child: child}
	}

	placeResidual(branch, newPath[k:], newValue)
	return wrapExtension(newPath[:k], branch)
}

// placeResidual attaches a residual (path, value) pair to a freshly built
// branch: as the branch's own value slot if the residual is empty, otherwise
// as a new Leaf at the branch index of the residual's first nibble.
func placeResidual(branch *Branch, residual nibbles.Path, value []byte) {
	if len(residual) == 0 {
		branch.Value = value
		return
	}
	branch.Children[residual[0]] = &Leaf{Path: append(nibbles.Path{}, residual[1:]...), Value: value}
}

// wrapExtension wraps branch in an Extension over prefix, unless prefix is
// empty in which case the branch is returned directly (spec §4.2).
func wrapExtension(prefix nibbles.Path, branch *Branch) Node {
	if len(prefix) == 0 {
		return branch
	}
	return &Extension{Path: append(nibbles.Path{}, prefix...), Child: branch}
}

// lookup mirrors the insert traversal (spec §4.2) and returns the stored
// value, if any. It only reads from the store and does not modify n: any
// Hash slot on the path is resolved, and the returned node is n rebuilt with
// those resolved nodes in place (n itself when nothing was resolved).
// Trie.GetRaw installs that returned node as the new root.
func lookup(n Node, path nibbles.Path, db store.Store) ([]byte, Node, error) {
	switch node := n.(type) {
	case nil:
		return nil, n, nil

	case *Leaf:
		if pathsEqual(node.Path, path) {
			return node.Value, n, nil
		}
		return nil, n, nil

	case *Extension:
		if !hasPrefix(path, node.Path) {
			return nil, n, nil
		}
		value, newChild, err := lookup(node.Child, path[len(node.Path):], db)
		if err != nil {
			return nil, n, err
		}
		if newChild != node.Child {
			return value, &Extension{Path: node.Path, Child: newChild}, nil
		}
		return value, n, nil

	case *Branch:
		if len(path) == 0 {
			if hasValue(node.Value) {
				return node.Value, n, nil
			}
			return nil, n, nil
		}
		idx := path[0]
		value, newChild, err := lookup(node.Children[idx], path[1:], db)
		if err != nil {
			return nil, n, err
		}
		if newChild != node.Children[idx] {
			newBranch := &Branch{Children: node.Children, Value: node.Value}
			newBranch.Children[idx] = newChild
			return value, newBranch, nil
		}
		return value, n, nil

	case *Hash:
		resolved, err := resolve(node, db)
		if err != nil {
			return nil, n, err
		}
		return lookup(resolved, path, db)

	default:
		return nil, n, fmt.Errorf("mpt: unknown node type %T", n)
	}
}

func pathsEqual(a, b nibbles.Path) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasPrefix(path, prefix nibbles.Path) bool {
	if len(prefix) > len(path) {
		return false
	}
	return pathsEqual(path[:len(prefix)], prefix)
}
