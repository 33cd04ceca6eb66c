// Package verify implements the pluggable proof-verification side of the
// payment gate: a single capability, Verify(proofHeader, requestHash,
// pricing) -> bool, with two implementations selected at construction.
package verify

import "github.com/x402gate/gate/pkg/x402"

// Verifier validates a client-presented payment proof against the request
// it claims to pay for. Implementations never return an error for an
// invalid proof — they return false — matching the spec's rule that a
// rejected proof never discloses which check failed.
type Verifier interface {
	Verify(proofHeader, requestHash string, pricing x402.PricingConfig) bool
}
