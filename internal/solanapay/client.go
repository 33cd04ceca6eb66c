package solanapay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client wraps an RPC connection to a Solana-compatible ledger.
type Client struct {
	rpc *rpc.Client
}

// NewClient dials rpcURL. Falling back to DefaultRPCURL is the caller's
// responsibility (the pricing/environment config layer does that).
func NewClient(rpcURL string) *Client {
	return &Client{rpc: rpc.New(rpcURL)}
}

// LatestBlockhash fetches a recent blockhash to stamp onto a new transaction.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("solanapay: get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// AccountExists reports whether an account is present on-chain, the way
// the payer checks for a sender/recipient's associated-token-account
// before attempting to use it.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("solanapay: get account info: %w", err)
	}
	return true, nil
}

// SendAndConfirm submits tx and polls for it to reach commitment, returning
// its signature once confirmed.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction, commitment rpc.CommitmentType) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("solanapay: send transaction: %w", err)
	}

	deadline := time.Now().Add(ConfirmTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return sig, ctx.Err()
		default:
		}

		statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return sig, fmt.Errorf("solanapay: transaction %s failed on-chain", sig)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized ||
				(commitment != rpc.CommitmentFinalized && status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed) {
				return sig, nil
			}
		}

		time.Sleep(ConfirmPollInterval)
	}

	return sig, fmt.Errorf("solanapay: transaction %s did not reach commitment %s within %s", sig, commitment, ConfirmTimeout)
}

// GetParsedTransaction fetches a confirmed transaction by signature, the
// way the on-chain verifier inspects it for a matching transferChecked
// and memo instruction.
func (c *Client) GetParsedTransaction(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	result, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("solanapay: get transaction: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("solanapay: transaction %s not found", sig)
	}
	return result, nil
}
