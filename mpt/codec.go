package mpt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"dualtrie/nibbles"
	"dualtrie/store"
)

func keccak(b []byte) common.Hash {
	return crypto.Keccak256Hash(b)
}

// materialize walks n bottom-up (spec §4.3), computing each node's own RLP
// encoding. It does not itself decide whether n should be inlined or
// hashed-and-stored in a parent — that is childRef's job, since only a
// parent knows n is being used as a child reference.
func materialize(n Node, db store.Store) (Node, []byte, error) {
	switch node := n.(type) {
	case nil:
		return nil, []byte{0x80}, nil

	case *Leaf:
		enc, err := leafEncoding(node.Path, node.Value)
		if err != nil {
			return nil, nil, err
		}
		return node, enc, nil

	case *Extension:
		newChild, ref, err := childRef(node.Child, db)
		if err != nil {
			return nil, nil, err
		}
		enc, err := extensionEncoding(node.Path, ref)
		if err != nil {
			return nil, nil, err
		}
		return &Extension{Path: node.Path, Child: newChild}, enc, nil

	case *Branch:
		newBranch := &Branch{Value: node.Value}
		var refs [16][]byte
		for i := 0; i < 16; i++ {
			newChild, ref, err := childRef(node.Children[i], db)
			if err != nil {
				return nil, nil, err
			}
			newBranch.Children[i] = newChild
			refs[i] = ref
		}
		enc, err := branchEncoding(refs, node.Value)
		if err != nil {
			return nil, nil, err
		}
		return newBranch, enc, nil

	case *Hash:
		return node, hashStringRLP(node.Hash), nil

	default:
		return nil, nil, fmt.Errorf("mpt: unknown node type %T", n)
	}
}

// childRef materializes n and applies the child-embedding rule (spec §3.3):
// if the encoding is < 32 bytes it is inlined into the parent as-is;
// otherwise it is written to the store keyed by its keccak256 and replaced
// with a Hash reference. A Hash child (a node not loaded from the store) is
// passed through unchanged — it is already the canonical reference form.
func childRef(n Node, db store.Store) (Node, []byte, error) {
	if h, ok := n.(*Hash); ok {
		return h, hashStringRLP(h.Hash), nil
	}

	newNode, encoding, err := materialize(n, db)
	if err != nil {
		return nil, nil, err
	}
	if len(encoding) < 32 {
		return newNode, encoding, nil
	}

	h := keccak(encoding)
	if err := db.Write(string(h.Bytes()), encoding); err != nil {
		return nil, nil, fmt.Errorf("mpt: writing node %x: %w", h, err)
	}
	return &Hash{Hash: h}, hashStringRLP(h), nil
}

func hashStringRLP(h common.Hash) []byte {
	enc, err := rlp.EncodeToBytes(h.Bytes())
	if err != nil {
		// rlp-encoding a fixed 32-byte slice never fails.
		panic(err)
	}
	return enc
}

func leafEncoding(path nibbles.Path, value []byte) ([]byte, error) {
	compact := nibbles.ToCompact(path, true)
	return rlp.EncodeToBytes([][]byte{compact, value})
}

func extensionEncoding(path nibbles.Path, childRef []byte) ([]byte, error) {
	compact := nibbles.ToCompact(path, false)
	return rlp.EncodeToBytes([]interface{}{compact, rlp.RawValue(childRef)})
}

func branchEncoding(refs [16][]byte, value []byte) ([]byte, error) {
	items := make([]interface{}, 0, 17)
	for _, r := range refs {
		items = append(items, rlp.RawValue(r))
	}
	items = append(items, value)
	return rlp.EncodeToBytes(items)
}

// decodeNode is the inverse of materialize's per-node encoding (spec §4.3):
// a 32-byte RLP string decodes to a Hash reference, an empty string to Nil,
// and a list of 2 or 17 items to a Leaf/Extension or Branch respectively.
func decodeNode(encoded []byte) (Node, error) {
	kind, content, rest, err := rlp.Split(encoded)
	if err != nil {
		return nil, fmt.Errorf("mpt: rlp split: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("mpt: trailing bytes after node encoding")
	}

	switch kind {
	case rlp.String:
		switch len(content) {
		case 0:
			return nil, nil
		case 32:
			return &Hash{Hash: common.BytesToHash(content)}, nil
		default:
			return nil, fmt.Errorf("mpt: invalid node string length %d", len(content))
		}

	case rlp.List:
		items, err := splitItems(content)
		if err != nil {
			return nil, err
		}
		switch len(items) {
		case 2:
			return decodeShortNode(items[0], items[1])
		case 17:
			return decodeBranchNode(items)
		default:
			return nil, fmt.Errorf("mpt: invalid node item count %d", len(items))
		}

	default:
		return nil, fmt.Errorf("mpt: invalid rlp kind %v", kind)
	}
}

func decodeShortNode(pathItem, secondItem []byte) (Node, error) {
	_, pathContent, _, err := rlp.Split(pathItem)
	if err != nil {
		return nil, fmt.Errorf("mpt: rlp split path: %w", err)
	}
	path, isLeaf, err := nibbles.FromCompact(pathContent)
	if err != nil {
		return nil, err
	}

	if isLeaf {
		_, valueContent, _, err := rlp.Split(secondItem)
		if err != nil {
			return nil, fmt.Errorf("mpt: rlp split leaf value: %w", err)
		}
		return &Leaf{Path: path, Value: append([]byte{}, valueContent...)}, nil
	}

	child, err := decodeNodeRef(secondItem)
	if err != nil {
		return nil, err
	}
	return &Extension{Path: path, Child: child}, nil
}

func decodeBranchNode(items [][]byte) (Node, error) {
	branch := &Branch{}
	for i := 0; i < 16; i++ {
		child, err := decodeNodeRef(items[i])
		if err != nil {
			return nil, err
		}
		branch.Children[i] = child
	}
	_, valueContent, _, err := rlp.Split(items[16])
	if err != nil {
		return nil, fmt.Errorf("mpt: rlp split branch value: %w", err)
	}
	if len(valueContent) > 0 {
		branch.Value = append([]byte{}, valueContent...)
	}
	return branch, nil
}

// decodeNodeRef decodes a single child slot: an embedded list recurses into
// decodeNode, an empty string is Nil, a 32-byte string is a Hash reference.
func decodeNodeRef(item []byte) (Node, error) {
	kind, content, _, err := rlp.Split(item)
	if err != nil {
		return nil, fmt.Errorf("mpt: rlp split child ref: %w", err)
	}
	switch kind {
	case rlp.List:
		return decodeNode(item)
	case rlp.String:
		switch len(content) {
		case 0:
			return nil, nil
		case 32:
			return &Hash{Hash: common.BytesToHash(content)}, nil
		default:
			return nil, fmt.Errorf("mpt: invalid child ref string length %d", len(content))
		}
	default:
		return nil, fmt.Errorf("mpt: invalid child ref rlp kind %v", kind)
	}
}

// splitItems slices the content of an RLP list into each item's full raw
// encoding (header included), so list items that are themselves embedded
// nodes can be recursively decoded.
func splitItems(content []byte) ([][]byte, error) {
	var items [][]byte
	rest := content
	for len(rest) > 0 {
		_, _, tail, err := rlp.Split(rest)
		if err != nil {
			return nil, fmt.Errorf("mpt: rlp split item: %w", err)
		}
		itemLen := len(rest) - len(tail)
		items = append(items, rest[:itemLen])
		rest = tail
	}
	return items, nil
}
