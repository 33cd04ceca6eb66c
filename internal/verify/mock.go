package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/x402gate/gate/pkg/x402"
)

// MockVerifier checks a symmetric HMAC-SHA256 signature over the nonce and
// request hash. It ignores pricing entirely — there is no amount semantics
// in mock mode, only signature and binding checks — so it is only suitable
// for offline testing and demos.
type MockVerifier struct {
	secret []byte
}

// NewMockVerifier creates a MockVerifier keyed by secret, typically a
// 32-byte random string per deployment.
func NewMockVerifier(secret string) *MockVerifier {
	return &MockVerifier{secret: []byte(secret)}
}

// Verify implements Verifier.
func (v *MockVerifier) Verify(proofHeader, requestHash string, _ x402.PricingConfig) bool {
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

	expected := MockSignature(v.secret, proof.Nonce, requestHash)
	if len(expected) != len(proof.Signature) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(proof.Signature))
}

// MockSignature computes the deterministic HMAC-SHA256 signature shared by
// MockVerifier and MockPayer: HMAC(secret, "nonce|requestHash") as lowercase
// hex.
func MockSignature(secret []byte, nonce, requestHash string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(nonce))
	mac.Write([]byte("|"))
	mac.Write([]byte(requestHash))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ Verifier = (*MockVerifier)(nil)
