package pay

import (
	"context"
	"testing"
	"time"

	"github.com/x402gate/gate/internal/verify"
	"github.com/x402gate/gate/pkg/x402"
)

func TestMockPayer_ProofValidatesUnderMockVerifier(t *testing.T) {
	secret := "s3cr3t"
	payer := NewMockPayer(secret, "payer-addr")
	verifier := verify.NewMockVerifier(secret)

	challenge := &x402.Challenge{
		Version:     x402.Version,
		Scheme:      x402.DefaultScheme,
		Price:       "0.001",
		Asset:       "USDC",
		Network:     "mock",
		Recipient:   "recipient-addr",
		Nonce:       "nonce-1",
		ExpiresAt:   time.Now().Add(time.Minute).UTC().Format(time.RFC3339),
		RequestHash: "deadbeef",
	}

	proof, err := payer.Pay(context.Background(), challenge)
	if err != nil {
		t.Fatalf("Pay() error: %v", err)
	}

	header, err := x402.EncodeProofHeader(proof)
	if err != nil {
		t.Fatalf("EncodeProofHeader() error: %v", err)
	}

	if !verifier.Verify(header, challenge.RequestHash, x402.PricingConfig{}) {
		t.Error("a MockPayer proof should validate under a MockVerifier with the same secret")
	}
}

func TestMockPayer_ProofFailsUnderDifferentSecret(t *testing.T) {
	payer := NewMockPayer("secret-a", "payer-addr")
	verifier := verify.NewMockVerifier("secret-b")

	challenge := &x402.Challenge{
		Version:     x402.Version,
		Nonce:       "nonce-1",
		ExpiresAt:   time.Now().Add(time.Minute).UTC().Format(time.RFC3339),
		RequestHash: "deadbeef",
	}

	proof, err := payer.Pay(context.Background(), challenge)
	if err != nil {
		t.Fatalf("Pay() error: %v", err)
	}
	header, _ := x402.EncodeProofHeader(proof)

	if verifier.Verify(header, challenge.RequestHash, x402.PricingConfig{}) {
		t.Error("a proof signed under one secret must not validate under another")
	}
}

func TestMockPayer_ProofFailsUnderDifferentRequestHash(t *testing.T) {
	secret := "s3cr3t"
	payer := NewMockPayer(secret, "payer-addr")
	verifier := verify.NewMockVerifier(secret)

	challenge := &x402.Challenge{
		Version:     x402.Version,
		Nonce:       "nonce-1",
		ExpiresAt:   time.Now().Add(time.Minute).UTC().Format(time.RFC3339),
		RequestHash: "deadbeef",
	}

	proof, err := payer.Pay(context.Background(), challenge)
	if err != nil {
		t.Fatalf("Pay() error: %v", err)
	}
	header, _ := x402.EncodeProofHeader(proof)

	if verifier.Verify(header, "different-hash", x402.PricingConfig{}) {
		t.Error("a proof bound to one requestHash must not validate against another")
	}
}

func TestMockPayer_ProofFailsWhenExpired(t *testing.T) {
	secret := "s3cr3t"
	payer := NewMockPayer(secret, "payer-addr")
	verifier := verify.NewMockVerifier(secret)

	challenge := &x402.Challenge{
		Version:     x402.Version,
		Nonce:       "nonce-1",
		ExpiresAt:   time.Now().Add(-time.Minute).UTC().Format(time.RFC3339),
		RequestHash: "deadbeef",
	}

	proof, err := payer.Pay(context.Background(), challenge)
	if err != nil {
		t.Fatalf("Pay() error: %v", err)
	}
	header, _ := x402.EncodeProofHeader(proof)

	if verifier.Verify(header, challenge.RequestHash, x402.PricingConfig{}) {
		t.Error("a proof copying an already-expired expiresAt must not validate")
	}
}

func TestMockPayer_CopiesChallengeFieldsVerbatim(t *testing.T) {
	payer := NewMockPayer("secret", "payer-addr")
	challenge := &x402.Challenge{
		Version:     x402.Version,
		Nonce:       "nonce-xyz",
		ExpiresAt:   time.Now().Add(time.Minute).UTC().Format(time.RFC3339),
		RequestHash: "hash-xyz",
	}

	proof, err := payer.Pay(context.Background(), challenge)
	if err != nil {
		t.Fatalf("Pay() error: %v", err)
	}

	if proof.Nonce != challenge.Nonce {
		t.Errorf("Nonce = %q, want %q", proof.Nonce, challenge.Nonce)
	}
	if proof.RequestHash != challenge.RequestHash {
		t.Errorf("RequestHash = %q, want %q", proof.RequestHash, challenge.RequestHash)
	}
	if proof.ExpiresAt != challenge.ExpiresAt {
		t.Errorf("ExpiresAt = %q, want %q", proof.ExpiresAt, challenge.ExpiresAt)
	}
	if proof.Payer != "payer-addr" {
		t.Errorf("Payer = %q, want %q", proof.Payer, "payer-addr")
	}
}
