package solanapay

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// transferCheckedInstructionType is the SPL-token-program instruction
// discriminator for TransferChecked.
const transferCheckedInstructionType = 12

// ScanResult reports what ScanTransaction found while scanning a
// confirmed transaction's instructions.
type ScanResult struct {
	HasMatchingTransfer bool
	HasMatchingMemo     bool
	BlockTime           *int64
	Failed              bool
}

// ScanTransaction inspects a fetched transaction for a transferChecked
// instruction moving at least expectedAmount (minus tolerance) of mint
// into destinationATA, and a memo instruction carrying exactly
// expectedMemo. Either absent instruction is reported as such; the caller
// combines this with its own temporal checks.
func ScanTransaction(result *rpc.GetTransactionResult, mint, destinationATA solana.PublicKey, expectedAmount, tolerance *big.Int, expectedMemo string) (*ScanResult, error) {
	out := &ScanResult{}

	if result.BlockTime != nil {
		t := int64(*result.BlockTime)
		out.BlockTime = &t
	}
	if result.Meta != nil && result.Meta.Err != nil {
		out.Failed = true
		return out, nil
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, err
	}

	threshold := new(big.Int).Sub(expectedAmount, tolerance)

	for _, ix := range tx.Message.Instructions {
		programID := tx.Message.AccountKeys[ix.ProgramIDIndex]

		switch {
		case programID.Equals(solana.TokenProgramID):
			if matchesTransferChecked(ix, tx.Message.AccountKeys, mint, destinationATA, threshold) {
				out.HasMatchingTransfer = true
			}
		case programID.Equals(memoProgramID):
			if string(ix.Data) == expectedMemo {
				out.HasMatchingMemo = true
			}
		}
	}

	return out, nil
}

func matchesTransferChecked(ix solana.CompiledInstruction, accountKeys []solana.PublicKey, mint, destinationATA solana.PublicKey, threshold *big.Int) bool {
	data := []byte(ix.Data)
	if len(data) < 10 || data[0] != transferCheckedInstructionType {
		return false
	}
	if len(ix.Accounts) < 3 {
		return false
	}

	amount := new(big.Int).SetUint64(leUint64(data[1:9]))
	txMint := accountKeys[ix.Accounts[1]]
	txDestination := accountKeys[ix.Accounts[2]]

	if !txMint.Equals(mint) {
		return false
	}
	if !txDestination.Equals(destinationATA) {
		return false
	}
	return amount.Cmp(threshold) >= 0
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// WithinFreshnessWindow reports whether blockTime satisfies the temporal
// checks in the on-chain verifier: non-nil, at or before expiresAt, and
// no older than MaxAgeSeconds.
func WithinFreshnessWindow(blockTime *int64, expiresAt time.Time, now time.Time) bool {
	if blockTime == nil {
		return false
	}
	bt := time.Unix(*blockTime, 0)
	if bt.After(expiresAt) {
		return false
	}
	if bt.Before(now.Add(-MaxAgeSeconds * time.Second)) {
		return false
	}
	return true
}
