package solanapay

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DeriveATA computes the deterministic associated-token-account address
// for owner's balance of mint. It derives the address; it does not check
// whether the account has actually been created on-chain (use
// Client.AccountExists for that).
func DeriveATA(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("solanapay: derive associated token address: %w", err)
	}
	return addr, nil
}
