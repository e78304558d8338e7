package mpt

import (
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// emptyRoot is the storage root of an account with no storage: the hash of
// the RLP encoding of the Nil node, keccak256(0x80).
var emptyRoot = keccak([]byte{0x80})

// emptyCodeHash is the code hash of an account with no code: keccak256 of
// the empty byte string.
var emptyCodeHash = crypto.Keccak256Hash(nil)

// Account is the RLP-encoded leaf value an account-style trie stores at an
// address path (spec §6.5's "accounts as leaf payloads" convention, carried
// from the original implementation's merkle/src/account.rs).
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// NewAccount returns a freshly created account: zero nonce and balance, no
// storage, no code.
func NewAccount() *Account {
	return &Account{
		Balance:     new(uint256.Int),
		StorageRoot: emptyRoot,
		CodeHash:    emptyCodeHash,
	}
}

// accountRLP mirrors Account's fields in the exact order they are committed
// to the wire; uint256.Int does not implement rlp.Encoder itself in the
// shape we want (big-endian, minimal), so balance is carried as the
// big-endian byte slice uint256 produces.
type accountRLP struct {
	Nonce       uint64
	Balance     []byte
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// EncodeRLP implements rlp.Encoder.
func (a *Account) EncodeRLP(w io.Writer) error {
	balance := []byte{}
	if a.Balance != nil && !a.Balance.IsZero() {
		balance = a.Balance.Bytes()
	}
	enc, err := rlp.EncodeToBytes(&accountRLP{
		Nonce:       a.Nonce,
		Balance:     balance,
		StorageRoot: a.StorageRoot,
		CodeHash:    a.CodeHash,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// DecodeRLP implements rlp.Decoder.
func (a *Account) DecodeRLP(s *rlp.Stream) error {
	var dec accountRLP
	if err := s.Decode(&dec); err != nil {
		return err
	}
	a.Nonce = dec.Nonce
	a.Balance = new(uint256.Int).SetBytes(dec.Balance)
	a.StorageRoot = dec.StorageRoot
	a.CodeHash = dec.CodeHash
	return nil
}

// IsContract reports whether this account has code associated with it.
func (a *Account) IsContract() bool {
	return a.CodeHash != emptyCodeHash
}
