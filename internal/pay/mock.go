package pay

import (
	"context"
	"time"

	"github.com/x402gate/gate/internal/verify"
	"github.com/x402gate/gate/pkg/x402"
)

// MockPayer produces a PaymentProof by signing the challenge's nonce and
// requestHash with a shared HMAC secret. It never touches any ledger.
type MockPayer struct {
	secret        []byte
	payerIdentity string
}

// NewMockPayer creates a MockPayer keyed by secret, reporting payerIdentity
// as the proof's Payer field (e.g. a deployment-chosen mock address).
func NewMockPayer(secret, payerIdentity string) *MockPayer {
	return &MockPayer{secret: []byte(secret), payerIdentity: payerIdentity}
}

// Pay implements Payer.
func (p *MockPayer) Pay(_ context.Context, challenge *x402.Challenge) (*x402.PaymentProof, error) {
	signature := verify.MockSignature(p.secret, challenge.Nonce, challenge.RequestHash)

	return &x402.PaymentProof{
		Version:     challenge.Version,
		Nonce:       challenge.Nonce,
		RequestHash: challenge.RequestHash,
		Payer:       p.payerIdentity,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ExpiresAt:   challenge.ExpiresAt,
		Signature:   signature,
	}, nil
}

var _ Payer = (*MockPayer)(nil)
