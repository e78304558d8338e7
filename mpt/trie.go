// Package mpt implements the hexary Merkle Patricia Trie engine of spec §3-§4:
// a content-addressed, Ethereum-bit-exact radix trie over nibble paths, with
// lazy Hash-node resolution against a store.Store.
package mpt

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"dualtrie/nibbles"
	"dualtrie/store"
)

// Trie is a single-owner handle over one MPT root. It is not safe for
// concurrent use by multiple goroutines without external synchronization,
// matching the store's own single-mutator expectation (spec §5).
type Trie struct {
	root Node
	db   store.Store
	log  ethlog.Logger
}

// NewTrie returns an empty trie backed by db.
func NewTrie(db store.Store) *Trie {
	return &Trie{db: db, log: ethlog.New("module", "mpt")}
}

// NewTrieWithRoot reopens a trie whose root hash is known, without eagerly
// resolving it: the root starts life as an unresolved Hash reference and is
// only loaded on first access, same as any other child slot.
func NewTrieWithRoot(db store.Store, root common.Hash) *Trie {
	t := NewTrie(db)
	if root != emptyRoot {
		t.root = &Hash{Hash: root}
	}
	return t
}

// SetRaw inserts value at the nibble path derived from key (spec §4.2). Keys
// are arbitrary bytes, unpacked two nibbles per byte — not pre-validated
// nibble paths, which is what nibbles.New is for.
func (t *Trie) SetRaw(key []byte, value []byte) error {
	path := nibbles.Unpack(key)
	newRoot, err := insert(t.root, path, value, t.db)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// GetRaw returns the value stored at key, if any. A lazily-resolved Hash
// chain encountered along the way is persisted back into the in-memory
// tree so repeat lookups don't re-hit the store.
func (t *Trie) GetRaw(key []byte) ([]byte, bool, error) {
	path := nibbles.Unpack(key)
	value, newRoot, err := lookup(t.root, path, t.db)
	if err != nil {
		return nil, false, err
	}
	t.root = newRoot
	return value, value != nil, nil
}

// accountPath derives the trie path for an address the way a secure trie
// does: keccak256(address), so paths are uniformly distributed regardless
// of how addresses themselves are chosen.
func accountPath(address common.Address) []byte {
	h := crypto.Keccak256(address.Bytes())
	return h
}

// SetAccount writes account at address's derived path.
func (t *Trie) SetAccount(address common.Address, account *Account) error {
	enc, err := rlp.EncodeToBytes(account)
	if err != nil {
		return fmt.Errorf("mpt: encoding account %x: %w", address, err)
	}
	return t.SetRaw(accountPath(address), enc)
}

// GetAccount reads and decodes the account at address's derived path. A
// decode failure is treated as spec §4.4 directs: surfaced as a lookup
// miss, with the underlying error logged out of band rather than returned,
// since a corrupt leaf payload does not invalidate the trie's structural
// hash guarantees.
func (t *Trie) GetAccount(address common.Address) (*Account, bool, error) {
	raw, ok, err := t.GetRaw(accountPath(address))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	account, err := decodeAccount(raw)
	if err != nil {
		t.log.Warn("mpt: account leaf failed to decode, treating as absent",
			"address", address, "err", err)
		return nil, false, nil
	}
	return account, true, nil
}

// GetHash materializes the tree bottom-up and returns the root hash
// (spec §4.3). An empty trie's hash is keccak256(0x80). A root that is still
// an unloaded Hash reference (see NewTrieWithRoot) is returned as is.
func (t *Trie) GetHash() (common.Hash, error) {
	if h, ok := t.root.(*Hash); ok {
		return h.Hash, nil
	}
	newRoot, encoding, err := materialize(t.root, t.db)
	if err != nil {
		return common.Hash{}, err
	}
	h := keccak(encoding)
	if err := t.db.Write(string(h.Bytes()), encoding); err != nil {
		return common.Hash{}, fmt.Errorf("mpt: writing root %x: %w", h, err)
	}
	t.root = newRoot
	return h, nil
}

// DebugString renders the in-memory node tree for diagnostics, generalizing
// the teacher's tree-dump printer to all five node variants. It does not
// resolve Hash placeholders.
func (t *Trie) DebugString() string {
	var b strings.Builder
	debugNode(&b, t.root, 0)
	return b.String()
}

func debugNode(b *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch node := n.(type) {
	case nil:
		fmt.Fprintf(b, "%sNil\n", indent)
	case *Leaf:
		fmt.Fprintf(b, "%sLeaf(path=%x, value=%x)\n", indent, []byte(node.Path), node.Value)
	case *Extension:
		fmt.Fprintf(b, "%sExtension(path=%x)\n", indent, []byte(node.Path))
		debugNode(b, node.Child, depth+1)
	case *Branch:
		fmt.Fprintf(b, "%sBranch(value=%x)\n", indent, node.Value)
		for i, child := range node.Children {
			if child == nil {
				continue
			}
			fmt.Fprintf(b, "%s[%x]\n", strings.Repeat("  ", depth+1), i)
			debugNode(b, child, depth+2)
		}
	case *Hash:
		fmt.Fprintf(b, "%sHash(%x)\n", indent, node.Hash)
	default:
		fmt.Fprintf(b, "%s<unknown %T>\n", indent, n)
	}
}

func decodeAccount(raw []byte) (*Account, error) {
	a := &Account{}
	if err := rlp.DecodeBytes(raw, a); err != nil {
		return nil, err
	}
	return a, nil
}
