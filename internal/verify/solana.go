package verify

import (
	"context"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402gate/gate/internal/solanapay"
	"github.com/x402gate/gate/internal/usdc"
	"github.com/x402gate/gate/pkg/x402"
)

// verifyRPCTimeout bounds how long a single on-chain verification may take;
// Verify has no ctx parameter to thread through from the caller.
const verifyRPCTimeout = 10 * time.Second

// SolanaVerifier checks that proof.signature identifies a confirmed
// transaction carrying a transferChecked into the priced recipient's ATA
// and a memo binding it to this exact nonce|requestHash pair.
type SolanaVerifier struct {
	client          *solanapay.Client
	mint            solana.PublicKey
	commitment      rpc.CommitmentType
	amountTolerance *big.Int
}

// NewSolanaVerifier builds a SolanaVerifier against client, checking
// transfers of mint. A nil amountTolerance is treated as zero.
func NewSolanaVerifier(client *solanapay.Client, mint solana.PublicKey, commitment rpc.CommitmentType, amountTolerance *big.Int) *SolanaVerifier {
	if amountTolerance == nil {
		amountTolerance = big.NewInt(0)
	}
	return &SolanaVerifier{client: client, mint: mint, commitment: commitment, amountTolerance: amountTolerance}
}

// Verify implements Verifier.
func (v *SolanaVerifier) Verify(proofHeader, requestHash string, pricing x402.PricingConfig) bool {
	proof, err := x402.DecodeProofHeader(proofHeader)
	if err != nil {
		return false
	}
	if proof.Version != x402.Version {
		return false
	}
	if proof.RequestHash != requestHash {
		return false
	}
	expiresAt, err := time.Parse(time.RFC3339, proof.ExpiresAt)
	if err != nil || !expiresAt.After(time.Now()) {
		return false
	}

	sig, err := solana.SignatureFromBase58(proof.Signature)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), verifyRPCTimeout)
	defer cancel()

	tx, err := v.client.GetParsedTransaction(ctx, sig, v.commitment)
	if err != nil {
		return false
	}

	expectedAmount, ok := usdc.Parse(pricing.Price)
	if !ok {
		return false
	}

	recipient, err := solana.PublicKeyFromBase58(pricing.Recipient)
	if err != nil {
		return false
	}
	expectedRecipientAta, err := solanapay.DeriveATA(recipient, v.mint)
	if err != nil {
		return false
	}

	expectedMemo := proof.Nonce + "|" + requestHash
	scan, err := solanapay.ScanTransaction(tx, v.mint, expectedRecipientAta, expectedAmount, v.amountTolerance, expectedMemo)
	if err != nil || scan.Failed {
		return false
	}
	if !scan.HasMatchingTransfer || !scan.HasMatchingMemo {
		return false
	}

	return solanapay.WithinFreshnessWindow(scan.BlockTime, expiresAt, time.Now())
}

var _ Verifier = (*SolanaVerifier)(nil)
