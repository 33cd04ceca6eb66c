// Package solanapay wraps the pieces of the Solana RPC and SPL-token
// surface the payment gate needs: deriving associated-token-accounts,
// building a transferChecked+memo transaction, submitting and confirming
// it, and scanning a confirmed transaction back for the same two
// instructions. Both the on-chain Verifier and the on-chain Payer build
// on this package rather than talking to rpc.Client directly.
package solanapay

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// USDCMintDevnet is the devnet USDC SPL-token mint. The on-chain payer and
// verifier built by internal/payermode always use this mint; no
// configuration option selects another.
const USDCMintDevnet = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"

// MemoProgramID is the SPL memo program address.
const MemoProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

// USDCDecimals is the fixed decimal count for USDC base units.
const USDCDecimals = 6

// DefaultRPCURL is the public devnet RPC endpoint. Nothing in the module
// reads it; the fallback for SOLANA_RPC_URL is config.DefaultSolanaRPCURL,
// which has the same value.
const DefaultRPCURL = "https://api.devnet.solana.com"

// DefaultCommitment is the "confirmed" confirmation level. Nothing in the
// module reads it; the commitment used comes from SOLANA_COMMITMENT, whose
// fallback is config.DefaultCommitment ("confirmed").
const DefaultCommitment = rpc.CommitmentConfirmed

// MaxAgeSeconds bounds how old a verified transaction's blockTime may be,
// rejecting stale-tx replay even when every other check passes.
const MaxAgeSeconds = 600

// ConfirmPollInterval is how often SendAndConfirm polls for signature status.
const ConfirmPollInterval = 500 * time.Millisecond

// ConfirmTimeout bounds how long SendAndConfirm waits before giving up.
const ConfirmTimeout = 30 * time.Second

var memoProgramID = solana.MustPublicKeyFromBase58(MemoProgramID)

// MemoProgramPublicKey returns the parsed memo program address.
func MemoProgramPublicKey() solana.PublicKey {
	return memoProgramID
}
