// Package pay implements the pluggable payer side of the payment gate: the
// client-side counterpart that turns a Challenge into a PaymentProof.
package pay

import (
	"context"
	"fmt"

	"github.com/x402gate/gate/pkg/x402"
)

// Payer produces a PaymentProof for a server-issued Challenge.
type Payer interface {
	Pay(ctx context.Context, challenge *x402.Challenge) (*x402.PaymentProof, error)
}

// SubmitError wraps a payer-side failure with the operation that failed and
// the on-chain transaction signature if one was already broadcast before
// the failure occurred (e.g. a submit succeeded but confirmation timed out).
type SubmitError struct {
	Op    string
	TxSig string
	Err   error
}

func (e *SubmitError) Error() string {
	if e.TxSig != "" {
		return fmt.Sprintf("pay: %s: tx %s: %v", e.Op, e.TxSig, e.Err)
	}
	return fmt.Sprintf("pay: %s: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
