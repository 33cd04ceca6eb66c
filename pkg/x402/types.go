// Package x402 implements the wire types and client-side retry loop for the
// HTTP 402 payment-gate protocol: a server-issued Challenge, a client-signed
// PaymentProof, and the fetch wrapper that turns a 402 into a paid retry.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Version is the only PaymentProof/Challenge version this implementation
// understands. A version mismatch is treated as an invalid proof.
const Version = 1

// DefaultScheme is used when a route's PricingConfig omits Scheme.
const DefaultScheme = "exact"

// DefaultNetwork is used when a route's PricingConfig omits Network.
const DefaultNetwork = "mock"

// DefaultTTLSeconds is used when a route's PricingConfig omits TTLSeconds.
const DefaultTTLSeconds = 300

// Challenge is what the server returns in a 402 body to describe the
// payment it requires before serving the request that produced it.
type Challenge struct {
	Version     int    `json:"version"`
	Scheme      string `json:"scheme"`
	Price       string `json:"price"`
	Asset       string `json:"asset"`
	Network     string `json:"network"`
	Recipient   string `json:"recipient"`
	Nonce       string `json:"nonce"`
	ExpiresAt   string `json:"expiresAt"`
	RequestHash string `json:"requestHash"`
	Description string `json:"description,omitempty"`
}

// ChallengeEnvelope is the canonical 402 response body shape: {"x402": {...}}.
type ChallengeEnvelope struct {
	X402 *Challenge `json:"x402"`
}

// acceptsEnvelope is an alternate multi-scheme 402 body shape some
// x402-family servers return: {"accepts": [{...}, ...]}. Only the first element is used
// here; this repo only ever issues a single scheme per challenge.
type acceptsEnvelope struct {
	Accepts []Challenge `json:"accepts"`
}

// PaymentProof is what the client sends back in the X-Payment-Proof header,
// base64url-encoded JSON, to prove it paid for a previously issued Challenge.
type PaymentProof struct {
	Version     int    `json:"version"`
	Nonce       string `json:"nonce"`
	RequestHash string `json:"requestHash"`
	Payer       string `json:"payer"`
	Timestamp   string `json:"timestamp"`
	ExpiresAt   string `json:"expiresAt"`
	Signature   string `json:"signature"`
}

// PricingConfig describes what a priced route charges. Recipient and Price
// are required; the rest default per spec.
type PricingConfig struct {
	Price       string
	Asset       string
	Network     string
	Recipient   string
	Scheme      string
	Description string
	TTLSeconds  int64
}

// TTL returns the configured TTL in seconds, or DefaultTTLSeconds if unset.
func (p PricingConfig) TTL() int64 {
	if p.TTLSeconds > 0 {
		return p.TTLSeconds
	}
	return DefaultTTLSeconds
}

// SchemeOrDefault returns the configured scheme, or DefaultScheme if unset.
func (p PricingConfig) SchemeOrDefault() string {
	if p.Scheme != "" {
		return p.Scheme
	}
	return DefaultScheme
}

// NetworkOrDefault returns the configured network, or DefaultNetwork if unset.
func (p PricingConfig) NetworkOrDefault() string {
	if p.Network != "" {
		return p.Network
	}
	return DefaultNetwork
}

// EncodeProofHeader serializes a PaymentProof as base64url(JSON(proof)), the
// exact value carried in the X-Payment-Proof header.
func EncodeProofHeader(proof *PaymentProof) (string, error) {
	data, err := json.Marshal(proof)
	if err != nil {
		return "", fmt.Errorf("marshal payment proof: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeProofHeader parses the X-Payment-Proof header value back into a
// PaymentProof. Any base64 or JSON error is returned as-is; callers treat
// such failures identically to a verifier rejection.
func DecodeProofHeader(header string) (*PaymentProof, error) {
	data, err := base64.RawURLEncoding.DecodeString(header)
	if err != nil {
		// Some clients pad the base64url value; tolerate that too.
		data, err = base64.URLEncoding.DecodeString(header)
		if err != nil {
			return nil, fmt.Errorf("decode payment proof: %w", err)
		}
	}

	var proof PaymentProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("parse payment proof: %w", err)
	}
	return &proof, nil
}

// ParseChallengeBody parses a 402 response body into a Challenge, accepting
// both the canonical {"x402": {...}} wrapper and the alternate
// {"accepts": [...]} envelope returned by some external x402 servers.
func ParseChallengeBody(body []byte) (*Challenge, error) {
	var envelope ChallengeEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.X402 != nil {
		return envelope.X402, nil
	}

	var accepts acceptsEnvelope
	if err := json.Unmarshal(body, &accepts); err == nil && len(accepts.Accepts) > 0 {
		return &accepts.Accepts[0], nil
	}

	return nil, fmt.Errorf("response body is not an x402 challenge envelope")
}
