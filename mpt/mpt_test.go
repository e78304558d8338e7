package mpt

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"dualtrie/store"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestEmptyTrieHash(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	h, err := trie.GetHash()
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if h != keccak([]byte{0x80}) {
		t.Fatalf("empty trie hash = %x, want keccak256(0x80) = %x", h, keccak([]byte{0x80}))
	}
}

func TestComputeHash(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	if err := trie.SetRaw([]byte("first"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	if err := trie.SetRaw([]byte("second"), []byte("value")); err != nil {
		t.Fatal(err)
	}

	h, err := trie.GetHash()
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	want := common.BytesToHash(mustHex("f7537e7f4b313c426440b7fface6bff76f51b3eb0d127356efbe6f2b3c891501"))
	if h != want {
		t.Fatalf("root = %x, want %x", h, want)
	}
}

func TestComputeHashLong(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	for _, key := range []string{"first", "second", "third", "fourth"} {
		if err := trie.SetRaw([]byte(key), []byte("value")); err != nil {
			t.Fatal(err)
		}
	}

	h, err := trie.GetHash()
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	want := common.BytesToHash(mustHex("e2ff76eca34a96b68e6871c74f2a5d9db58e59f82073276866fdd25e560cedea"))
	if h != want {
		t.Fatalf("root = %x, want %x", h, want)
	}
}

func TestGetInserted(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	if err := trie.SetRaw([]byte("first"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	if err := trie.SetRaw([]byte("second"), []byte("value")); err != nil {
		t.Fatal(err)
	}

	if v, ok, err := trie.GetRaw([]byte("first")); err != nil || !ok || string(v) != "value" {
		t.Fatalf("get(first) = %q, %v, %v", v, ok, err)
	}
	if v, ok, err := trie.GetRaw([]byte("second")); err != nil || !ok || string(v) != "value" {
		t.Fatalf("get(second) = %q, %v, %v", v, ok, err)
	}
}

func TestGetInsertedZero(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	if err := trie.SetRaw([]byte{0x0}, []byte("value")); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := trie.GetRaw([]byte{0x0}); err != nil || !ok || string(v) != "value" {
		t.Fatalf("get(0x00) = %q, %v, %v", v, ok, err)
	}
}

// TestSiblingPrefixCollision mirrors a regression where one key is a byte
// prefix of another and both must remain independently readable.
func TestSiblingPrefixCollision(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	cases := [][]byte{{0x00}, {0xC8}, {0xC8, 0x00}}
	for _, k := range cases {
		if err := trie.SetRaw(k, k); err != nil {
			t.Fatal(err)
		}
	}
	for _, k := range cases {
		v, ok, err := trie.GetRaw(k)
		if err != nil || !ok || !bytes.Equal(v, k) {
			t.Fatalf("get(%x) = %x, %v, %v", k, v, ok, err)
		}
	}
}

// TestNibbleSixteenRegression mirrors a shrunk proptest failure where a key
// byte of 16 produced a nibble whose high digit collides with a terminator
// marker if nibble decomposition is done carelessly.
func TestNibbleSixteenRegression(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	if err := trie.SetRaw([]byte{16}, []byte{0}); err != nil {
		t.Fatal(err)
	}
	if err := trie.SetRaw([]byte{16, 0}, []byte{0}); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := trie.GetRaw([]byte{16}); !ok || !bytes.Equal(v, []byte{0}) {
		t.Fatalf("get([16]) = %x, %v", v, ok)
	}
	if v, ok, _ := trie.GetRaw([]byte{16, 0}); !ok || !bytes.Equal(v, []byte{0}) {
		t.Fatalf("get([16,0]) = %x, %v", v, ok)
	}
}

func TestRoundTripSurvivesCommit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	trie := NewTrie(store.NewMemory())

	type kv struct{ k, v []byte }
	var entries []kv
	for i := 0; i < 64; i++ {
		k := make([]byte, 1+rng.Intn(20))
		rng.Read(k)
		v := make([]byte, 1+rng.Intn(20))
		rng.Read(v)
		entries = append(entries, kv{k, v})
		if err := trie.SetRaw(k, v); err != nil {
			t.Fatal(err)
		}
	}

	for _, e := range entries {
		v, ok, err := trie.GetRaw(e.k)
		if err != nil || !ok || !bytes.Equal(v, e.v) {
			t.Fatalf("pre-commit get(%x) = %x, %v, %v", e.k, v, ok, err)
		}
	}

	if _, err := trie.GetHash(); err != nil {
		t.Fatalf("GetHash: %v", err)
	}

	for _, e := range entries {
		v, ok, err := trie.GetRaw(e.k)
		if err != nil || !ok || !bytes.Equal(v, e.v) {
			t.Fatalf("post-commit get(%x) = %x, %v, %v", e.k, v, ok, err)
		}
	}
}

func TestDeterminismAcrossInsertOrder(t *testing.T) {
	keys := [][2][]byte{
		{[]byte("alpha"), []byte("1")},
		{[]byte("beta"), []byte("2")},
		{[]byte("gamma"), []byte("3")},
		{[]byte("delta"), []byte("4")},
	}

	trieA := NewTrie(store.NewMemory())
	for _, kv := range keys {
		if err := trieA.SetRaw(kv[0], kv[1]); err != nil {
			t.Fatal(err)
		}
	}
	rootA, err := trieA.GetHash()
	if err != nil {
		t.Fatal(err)
	}

	reversed := make([][2][]byte, len(keys))
	for i, kv := range keys {
		reversed[len(keys)-1-i] = kv
	}
	trieB := NewTrie(store.NewMemory())
	for _, kv := range reversed {
		if err := trieB.SetRaw(kv[0], kv[1]); err != nil {
			t.Fatal(err)
		}
	}
	rootB, err := trieB.GetHash()
	if err != nil {
		t.Fatal(err)
	}

	if rootA != rootB {
		t.Fatalf("insertion order changed root: %x != %x", rootA, rootB)
	}
}

// TestRehashStability checks spec's re-hash stability property: every node
// reachable from the committed root re-hashes to the key it was stored under.
func TestRehashStability(t *testing.T) {
	db := store.NewMemory()
	trie := NewTrie(db)
	for i := 0; i < 200; i++ {
		key := []byte{byte(i), byte(i >> 8), byte(i * 7)}
		if err := trie.SetRaw(key, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	root, err := trie.GetHash()
	if err != nil {
		t.Fatal(err)
	}

	mem, ok := interface{}(db).(*store.Memory)
	if !ok {
		t.Fatal("expected *store.Memory")
	}
	if mem.Len() == 0 {
		t.Fatal("expected commit to persist at least one node")
	}

	// Reading every key back through a trie reopened at the root loads each
	// stored node on the way; resolve rejects any node whose keccak256
	// differs from the key it was stored under.
	reopened := NewTrieWithRoot(db, root)
	for i := 0; i < 200; i++ {
		key := []byte{byte(i), byte(i >> 8), byte(i * 7)}
		v, ok, err := reopened.GetRaw(key)
		if err != nil || !ok || !bytes.Equal(v, []byte{byte(i)}) {
			t.Fatalf("reopened get(%x) = %x, %v, %v", key, v, ok, err)
		}
	}
}

func TestAccountRoundTrip(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	addr := common.HexToAddress("0x00000000000000000000000000000000000001")

	account := NewAccount()
	account.Nonce = 7
	account.Balance = uint256.NewInt(1_000_000)

	if err := trie.SetAccount(addr, account); err != nil {
		t.Fatal(err)
	}

	got, ok, err := trie.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("account not found")
	}
	if got.Nonce != 7 || got.Balance.Cmp(uint256.NewInt(1_000_000)) != 0 {
		t.Fatalf("account mismatch: %+v", got)
	}
}

func TestAccountNotFound(t *testing.T) {
	trie := NewTrie(store.NewMemory())
	_, ok, err := trie.GetAccount(common.HexToAddress("0x1"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected account absent")
	}
}

func TestMissingNodeError(t *testing.T) {
	db := store.NewMemory()
	trie := NewTrieWithRoot(db, common.HexToHash("0xdeadbeef"))
	_, _, err := trie.GetRaw([]byte("anything"))
	if err == nil {
		t.Fatal("expected an error for a root hash absent from the store")
	}
}
