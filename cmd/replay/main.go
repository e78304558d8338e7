// Command replay re-derives an MPT's state root block-by-block from a
// recorded deposit history, the way the original implementation's
// merkle/src/history.rs and main.rs drove the teacher's own devnet replay
// (spec §6.6). Each block's deposits are folded into account balances via
// Trie.SetAccount, and the resulting root must match the block's recorded
// state root.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"dualtrie/mpt"
	"dualtrie/store"
)

// Deposit is one (address, amount) credit, serialized as a 2-element JSON
// array to match the original's tuple-struct Deposit(Address, U256).
type Deposit struct {
	Address common.Address
	Amount  *uint256.Int
}

func (d *Deposit) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("replay: decoding deposit: %w", err)
	}
	var addr common.Address
	if err := json.Unmarshal(raw[0], &addr); err != nil {
		return fmt.Errorf("replay: decoding deposit address: %w", err)
	}
	var amountStr string
	if err := json.Unmarshal(raw[1], &amountStr); err != nil {
		return fmt.Errorf("replay: decoding deposit amount: %w", err)
	}
	amount, err := parseUint256(amountStr)
	if err != nil {
		return fmt.Errorf("replay: parsing deposit amount %q: %w", amountStr, err)
	}
	d.Address, d.Amount = addr, amount
	return nil
}

func parseUint256(s string) (*uint256.Int, error) {
	if len(s) > 1 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// BlockDeposits is one block's worth of deposits plus the state root the
// replay must reproduce after applying them.
type BlockDeposits struct {
	Block     uint64      `json:"block"`
	Hash      common.Hash `json:"hash"`
	StateRoot common.Hash `json:"state_root"`
	Deposits  []Deposit   `json:"deposits"`
}

// HistoricalDeposits is the full recorded history (spec §6.6, original
// history.rs::HistoricalDeposits).
type HistoricalDeposits struct {
	Blocks []BlockDeposits `json:"blocks"`
}

// ReadHistoryFile loads and validates a history.json file: block numbers
// must run 0, 1, 2, ... in order, mirroring check_deposits_history.
func ReadHistoryFile(path string) (*HistoricalDeposits, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: opening %s: %w", path, err)
	}
	defer f.Close()

	var history HistoricalDeposits
	if err := json.NewDecoder(f).Decode(&history); err != nil {
		return nil, fmt.Errorf("replay: decoding %s: %w", path, err)
	}
	for i, block := range history.Blocks {
		if block.Block != uint64(i) {
			return nil, fmt.Errorf("replay: invalid block history: block %d has index %d", block.Block, i)
		}
	}
	return &history, nil
}

// Replay folds history into trie one block at a time, returning an error
// the first time a block's recomputed root diverges from its recorded one.
func Replay(history *HistoricalDeposits, trie *mpt.Trie, log ethlog.Logger) error {
	for _, block := range history.Blocks {
		for _, deposit := range block.Deposits {
			account, ok, err := trie.GetAccount(deposit.Address)
			if err != nil {
				return fmt.Errorf("replay: reading account %x at block %d: %w", deposit.Address, block.Block, err)
			}
			if !ok {
				account = mpt.NewAccount()
			}
			var newBalance uint256.Int
			newBalance.Add(account.Balance, deposit.Amount)
			account.Balance = &newBalance

			if err := trie.SetAccount(deposit.Address, account); err != nil {
				return fmt.Errorf("replay: writing account %x at block %d: %w", deposit.Address, block.Block, err)
			}
		}

		root, err := trie.GetHash()
		if err != nil {
			return fmt.Errorf("replay: hashing block %d: %w", block.Block, err)
		}
		log.Info("processed block", "block", block.Block, "root", root)
		if root != block.StateRoot {
			return fmt.Errorf("replay: block %d: state root mismatch: got %x, want %x", block.Block, root, block.StateRoot)
		}
	}
	return nil
}

func main() {
	path := flag.String("history", "history.json", "path to the recorded deposit history")
	flag.Parse()

	log := ethlog.New("module", "replay")

	history, err := ReadHistoryFile(*path)
	if err != nil {
		log.Error("reading history", "err", err)
		os.Exit(1)
	}

	trie := mpt.NewTrie(store.NewMemory())
	if err := Replay(history, trie, log); err != nil {
		log.Error("replay failed", "err", err)
		os.Exit(1)
	}

	fmt.Printf("replayed %d blocks successfully\n", len(history.Blocks))
}
