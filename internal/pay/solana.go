package pay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402gate/gate/internal/retry"
	"github.com/x402gate/gate/internal/solanapay"
	"github.com/x402gate/gate/internal/syncutil"
	"github.com/x402gate/gate/internal/usdc"
	"github.com/x402gate/gate/pkg/x402"
)

// submitMaxAttempts and submitBaseDelay bound the retry of a transaction
// submission against transient RPC failures (rate limiting, dropped
// connections). Every SendAndConfirm error is retried alike, including a
// stale blockhash, although resubmitting the same signed transaction cannot
// recover from that one.
const (
	submitMaxAttempts = 3
	submitBaseDelay   = 250 * time.Millisecond
)

// SolanaPayer builds and submits a real transferChecked + memo transaction
// moving USDC to the challenge's recipient, returning the transaction
// signature as the PaymentProof's signature.
type SolanaPayer struct {
	client     *solanapay.Client
	key        solana.PrivateKey
	mint       solana.PublicKey
	commitment rpc.CommitmentType

	// submitLocks serializes concurrent submissions from the same sender
	// key, since two in-flight transfers racing on the same fee payer can
	// both observe a stale account state and double-spend a UTXO-like
	// token balance check.
	submitLocks *syncutil.ContextShardedMutex
}

// NewSolanaPayer builds a SolanaPayer. privateKey accepts either a base58
// string or a JSON byte-array string (e.g. `[1,2,3,...]`), auto-detected by
// a leading '['.
func NewSolanaPayer(client *solanapay.Client, privateKey string, mint solana.PublicKey, commitment rpc.CommitmentType) (*SolanaPayer, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return &SolanaPayer{
		client:      client,
		key:         key,
		mint:        mint,
		commitment:  commitment,
		submitLocks: syncutil.NewContextShardedMutex(),
	}, nil
}

func parsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		// encoding/json treats []byte specially (base64 string), so decode
		// through []int to parse the plain array-of-numbers keypair format.
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, &SubmitError{Op: "parse private key", Err: fmt.Errorf("invalid JSON byte array: %w", err)}
		}
		raw := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, &SubmitError{Op: "parse private key", Err: fmt.Errorf("byte array entry %d out of range: %d", i, v)}
			}
			raw[i] = byte(v)
		}
		return solana.PrivateKey(raw), nil
	}
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, &SubmitError{Op: "parse private key", Err: err}
	}
	return key, nil
}

// Pay implements Payer.
func (p *SolanaPayer) Pay(ctx context.Context, challenge *x402.Challenge) (*x402.PaymentProof, error) {
	amount, ok := usdc.Parse(challenge.Price)
	if !ok || !amount.IsUint64() {
		return nil, &SubmitError{Op: "compute amount", Err: fmt.Errorf("invalid price %q", challenge.Price)}
	}

	sender := p.key.PublicKey()

	unlock, err := p.submitLocks.LockContext(ctx, sender.String())
	if err != nil {
		return nil, &SubmitError{Op: "acquire submit lock", Err: err}
	}
	defer unlock()

	recipient, err := solana.PublicKeyFromBase58(challenge.Recipient)
	if err != nil {
		return nil, &SubmitError{Op: "parse recipient", Err: err}
	}

	senderATA, err := solanapay.DeriveATA(sender, p.mint)
	if err != nil {
		return nil, &SubmitError{Op: "derive sender ata", Err: err}
	}
	recipientATA, err := solanapay.DeriveATA(recipient, p.mint)
	if err != nil {
		return nil, &SubmitError{Op: "derive recipient ata", Err: err}
	}

	exists, err := p.client.AccountExists(ctx, senderATA)
	if err != nil {
		return nil, &SubmitError{Op: "check sender ata", Err: err}
	}
	if !exists {
		return nil, &SubmitError{Op: "check sender ata", Err: fmt.Errorf("Payer has no USDC token account")}
	}

	exists, err = p.client.AccountExists(ctx, recipientATA)
	if err != nil {
		return nil, &SubmitError{Op: "check recipient ata", Err: err}
	}
	if !exists {
		return nil, &SubmitError{Op: "check recipient ata", Err: fmt.Errorf("Recipient has no USDC token account")}
	}

	memo := challenge.Nonce + "|" + challenge.RequestHash
	tx, err := solanapay.TransferCheckedMemoTx(ctx, p.client, sender, senderATA, recipientATA, p.mint, sender, amount.Uint64(), memo)
	if err != nil {
		return nil, &SubmitError{Op: "build transaction", Err: err}
	}

	if err := solanapay.SignWith(tx, p.key); err != nil {
		return nil, &SubmitError{Op: "sign transaction", Err: err}
	}

	var sig solana.Signature
	submitErr := retry.Do(ctx, submitMaxAttempts, submitBaseDelay, func() error {
		var sendErr error
		sig, sendErr = p.client.SendAndConfirm(ctx, tx, p.commitment)
		return sendErr
	})
	if submitErr != nil {
		var txSig string
		if sig != (solana.Signature{}) {
			txSig = sig.String()
		}
		return nil, &SubmitError{Op: "submit transaction", TxSig: txSig, Err: submitErr}
	}

	return &x402.PaymentProof{
		Version:     challenge.Version,
		Nonce:       challenge.Nonce,
		RequestHash: challenge.RequestHash,
		Payer:       sender.String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ExpiresAt:   challenge.ExpiresAt,
		Signature:   sig.String(),
	}, nil
}

var _ Payer = (*SolanaPayer)(nil)
