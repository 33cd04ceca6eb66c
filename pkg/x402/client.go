package x402

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/x402gate/gate/internal/usdc"
)

// Payer produces a PaymentProof for a server-issued Challenge. Declared here
// rather than imported from internal/pay so this package stays usable by
// external callers without pulling the gate's server-side internals.
type Payer interface {
	Pay(ctx context.Context, challenge *Challenge) (*PaymentProof, error)
}

// Client wraps http.Client with automatic 402 payment handling: on a 402
// response it parses the x402 challenge, asks its Payer to pay, and retries
// the original request once with the resulting proof attached.
type Client struct {
	httpClient *http.Client
	payer      Payer

	// MaxRetries bounds paid retries per Do call. The protocol allows
	// exactly one payment per call; set to 0 to disable auto-pay entirely.
	MaxRetries int

	// MaxPayment caps the price this Client will pay for a single challenge,
	// as a decimal string in the same units as Challenge.Price (e.g.
	// "5.00"). Empty means unlimited.
	MaxPayment string

	// OnPayment is called with the challenge and resulting proof right
	// before the paid retry is issued.
	OnPayment func(challenge *Challenge, proof *PaymentProof)

	// allowLocalEndpoints disables Invoke's SSRF check, for tests and local
	// demos where the gated endpoint legitimately runs on localhost.
	allowLocalEndpoints bool
}

// WithAllowLocalEndpoints disables Invoke's SSRF validation, allowing
// loopback and private endpoints. Only use this for tests and demo mode
// where the gated service runs locally.
func (c *Client) WithAllowLocalEndpoints() *Client {
	c.allowLocalEndpoints = true
	return c
}

// NewClient creates an x402-enabled HTTP client backed by payer.
func NewClient(payer Payer) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		payer:      payer,
		MaxRetries: 1,
	}
}

// Do performs req, transparently paying and retrying once if the server
// responds 402 with an x402 challenge. Idempotency-Key and all other
// caller-supplied headers are preserved across the retry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("x402: read request body: %w", err)
		}
		_ = req.Body.Close()
	}

	resp, err := c.send(req, bodyBytes)
	if err != nil {
		return nil, err
	}

	attemptsRemaining := c.MaxRetries
	for resp.StatusCode == http.StatusPaymentRequired && attemptsRemaining > 0 {
		challengeBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("x402: read challenge body: %w", readErr)
		}

		challenge, parseErr := ParseChallengeBody(challengeBody)
		if parseErr != nil {
			// Not an x402 challenge: hand the 402 back unchanged.
			resp.Body = io.NopCloser(bytes.NewReader(challengeBody))
			return resp, nil
		}

		if c.MaxPayment != "" {
			if err := c.checkPaymentLimit(challenge.Price); err != nil {
				return nil, err
			}
		}

		proof, payErr := c.payer.Pay(req.Context(), challenge)
		if payErr != nil {
			return nil, fmt.Errorf("x402: payment failed: %w", payErr)
		}

		if c.OnPayment != nil {
			c.OnPayment(challenge, proof)
		}

		header, encErr := EncodeProofHeader(proof)
		if encErr != nil {
			return nil, fmt.Errorf("x402: encode payment proof: %w", encErr)
		}
		req.Header.Set("X-Payment-Proof", header)

		attemptsRemaining--
		resp, err = c.send(req, bodyBytes)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Get performs a GET request with automatic 402 handling.
func (c *Client) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// checkPaymentLimit returns an error if price exceeds c.MaxPayment.
func (c *Client) checkPaymentLimit(price string) error {
	maxAmount, ok := usdc.Parse(c.MaxPayment)
	if !ok {
		return fmt.Errorf("x402: invalid MaxPayment %q", c.MaxPayment)
	}

	reqAmount, ok := usdc.Parse(price)
	if !ok {
		return fmt.Errorf("x402: invalid challenge price %q", price)
	}

	if reqAmount.Cmp(maxAmount) > 0 {
		return fmt.Errorf("x402: payment %s exceeds max %s", price, c.MaxPayment)
	}

	return nil
}

// send issues one attempt of req, re-attaching bodyBytes so the same
// request can be replayed across the paid retry.
func (c *Client) send(req *http.Request, bodyBytes []byte) (*http.Response, error) {
	r := req.Clone(req.Context())
	if bodyBytes != nil {
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		r.ContentLength = int64(len(bodyBytes))
	}
	resp, err := c.httpClient.Do(r)
	if err != nil {
		return nil, fmt.Errorf("x402: request failed: %w", err)
	}
	return resp, nil
}
