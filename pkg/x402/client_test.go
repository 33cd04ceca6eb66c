package x402

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPayer struct {
	proof *PaymentProof
	err   error
	calls int
}

func (p *stubPayer) Pay(_ context.Context, challenge *Challenge) (*PaymentProof, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	proof := *p.proof
	proof.Nonce = challenge.Nonce
	proof.RequestHash = challenge.RequestHash
	return &proof, nil
}

func TestClient_Do_NoPaymentNeeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(&stubPayer{})
	req := httptest.NewRequest(http.MethodGet, server.URL, nil)
	req.RequestURI = ""

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_Do_PaysOnceAndRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("X-Payment-Proof") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"x402":{"version":1,"scheme":"exact","price":"0.01","asset":"USDC","network":"mock","recipient":"r","nonce":"n1","expiresAt":"2026-07-31T00:05:00Z","requestHash":"h1"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	payer := &stubPayer{proof: &PaymentProof{Version: Version, Signature: "sig"}}
	client := NewClient(payer)
	req := httptest.NewRequest(http.MethodGet, server.URL, nil)
	req.RequestURI = ""

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, payer.calls)
}

func TestClient_Do_NonChallenge402PassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"unrelated payment wall"}`))
	}))
	defer server.Close()

	payer := &stubPayer{proof: &PaymentProof{Version: Version}}
	client := NewClient(payer)
	req := httptest.NewRequest(http.MethodGet, server.URL, nil)
	req.RequestURI = ""

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Zero(t, payer.calls)
}

func TestClient_Do_MaxRetriesZero_NeverPays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"x402":{"version":1,"scheme":"exact","price":"0.01","asset":"USDC","network":"mock","recipient":"r","nonce":"n1","expiresAt":"2026-07-31T00:05:00Z","requestHash":"h1"}}`))
	}))
	defer server.Close()

	payer := &stubPayer{proof: &PaymentProof{Version: Version}}
	client := NewClient(payer)
	client.MaxRetries = 0
	req := httptest.NewRequest(http.MethodGet, server.URL, nil)
	req.RequestURI = ""

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Zero(t, payer.calls)
}

func TestClient_Do_MaxPayment_RejectsExpensiveChallenge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"x402":{"version":1,"scheme":"exact","price":"5.00","asset":"USDC","network":"mock","recipient":"r","nonce":"n1","expiresAt":"2026-07-31T00:05:00Z","requestHash":"h1"}}`))
	}))
	defer server.Close()

	payer := &stubPayer{proof: &PaymentProof{Version: Version}}
	client := NewClient(payer)
	client.MaxPayment = "1.00"
	req := httptest.NewRequest(http.MethodGet, server.URL, nil)
	req.RequestURI = ""

	_, err := client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
	assert.Zero(t, payer.calls)
}

func TestClient_Do_MaxPayment_AllowsCheapChallenge(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("X-Payment-Proof") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"x402":{"version":1,"scheme":"exact","price":"0.01","asset":"USDC","network":"mock","recipient":"r","nonce":"n1","expiresAt":"2026-07-31T00:05:00Z","requestHash":"h1"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	payer := &stubPayer{proof: &PaymentProof{Version: Version, Signature: "sig"}}
	client := NewClient(payer)
	client.MaxPayment = "1.00"
	req := httptest.NewRequest(http.MethodGet, server.URL, nil)
	req.RequestURI = ""

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, payer.calls)
}
