package verify

import (
	"testing"
	"time"

	"github.com/x402gate/gate/pkg/x402"
)

func validProof(secret []byte, nonce, requestHash string, expiresAt time.Time) *x402.PaymentProof {
	return &x402.PaymentProof{
		Version:     x402.Version,
		Nonce:       nonce,
		RequestHash: requestHash,
		Payer:       "mock-payer",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
		Signature:   MockSignature(secret, nonce, requestHash),
	}
}

func encode(t *testing.T, proof *x402.PaymentProof) string {
	t.Helper()
	header, err := x402.EncodeProofHeader(proof)
	if err != nil {
		t.Fatalf("EncodeProofHeader() error: %v", err)
	}
	return header
}

func TestMockVerifier_ValidProof(t *testing.T) {
	secret := []byte("s3cr3t")
	v := NewMockVerifier(string(secret))

	proof := validProof(secret, "n1", "hash1", time.Now().Add(time.Minute))
	if !v.Verify(encode(t, proof), "hash1", x402.PricingConfig{}) {
		t.Error("Verify() should accept a correctly signed, unexpired proof")
	}
}

func TestMockVerifier_WrongSecret(t *testing.T) {
	v := NewMockVerifier("correct-secret")
	proof := validProof([]byte("wrong-secret"), "n1", "hash1", time.Now().Add(time.Minute))

	if v.Verify(encode(t, proof), "hash1", x402.PricingConfig{}) {
		t.Error("Verify() should reject a proof signed with a different secret")
	}
}

func TestMockVerifier_WrongRequestHash(t *testing.T) {
	secret := []byte("s3cr3t")
	v := NewMockVerifier(string(secret))
	proof := validProof(secret, "n1", "hash1", time.Now().Add(time.Minute))

	if v.Verify(encode(t, proof), "different-hash", x402.PricingConfig{}) {
		t.Error("Verify() should reject when the requestHash doesn't match")
	}
}

func TestMockVerifier_ExpiredProof(t *testing.T) {
	secret := []byte("s3cr3t")
	v := NewMockVerifier(string(secret))
	proof := validProof(secret, "n1", "hash1", time.Now().Add(-time.Minute))

	if v.Verify(encode(t, proof), "hash1", x402.PricingConfig{}) {
		t.Error("Verify() should reject a proof whose expiresAt is in the past")
	}
}

func TestMockVerifier_MalformedHeader(t *testing.T) {
	v := NewMockVerifier("secret")
	if v.Verify("not-valid-base64url-json!!", "hash1", x402.PricingConfig{}) {
		t.Error("Verify() should reject an undecodable proof header")
	}
}

func TestMockVerifier_WrongVersion(t *testing.T) {
	secret := []byte("s3cr3t")
	v := NewMockVerifier(string(secret))
	proof := validProof(secret, "n1", "hash1", time.Now().Add(time.Minute))
	proof.Version = 2

	if v.Verify(encode(t, proof), "hash1", x402.PricingConfig{}) {
		t.Error("Verify() should reject an unsupported proof version")
	}
}

func TestMockVerifier_TamperedSignatureLength(t *testing.T) {
	secret := []byte("s3cr3t")
	v := NewMockVerifier(string(secret))
	proof := validProof(secret, "n1", "hash1", time.Now().Add(time.Minute))
	proof.Signature = proof.Signature[:len(proof.Signature)-4]

	if v.Verify(encode(t, proof), "hash1", x402.PricingConfig{}) {
		t.Error("Verify() should reject a truncated signature")
	}
}
