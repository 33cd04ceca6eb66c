// Package paygate implements the HTTP 402 Payment-Gate state machine: the
// gin middleware that turns a priced route into a pay-to-call endpoint.
package paygate

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/x402gate/gate/internal/hash"
	"github.com/x402gate/gate/internal/idempotency"
	"github.com/x402gate/gate/internal/idgen"
	"github.com/x402gate/gate/internal/metrics"
	"github.com/x402gate/gate/internal/nonce"
	"github.com/x402gate/gate/internal/traces"
	"github.com/x402gate/gate/internal/verify"
	"github.com/x402gate/gate/pkg/x402"
)

// nonceGraceSeconds is added to proof.expiresAt when reserving a nonce, so a
// proof that was valid right up to expiry still gets a one-shot reservation
// instead of racing the clock against the verifier's own expiry check.
const nonceGraceSeconds = 60

// Config wires a Gate's dependencies. Verifier is required; everything else
// defaults per spec.
type Config struct {
	Verifier          verify.Verifier
	IdempotencyStore  idempotency.Store
	DefaultTTLSeconds int64
	Logger            *slog.Logger

	// OnChallengeIssued fires whenever a 402 challenge is emitted.
	OnChallengeIssued func(route string, challenge *x402.Challenge)
	// OnVerified fires after a proof passes verification, before the handler runs.
	OnVerified func(route string, proof *x402.PaymentProof)
	// OnRejected fires whenever a request is denied (invalid proof or nonce replay).
	OnRejected func(route string, reason string)
}

// Gate holds the shared, request-scoped state for the payment-gate
// middleware: the nonce registry and the idempotency store belong to this
// instance, never to package-level globals.
type Gate struct {
	cfg    Config
	nonces *nonce.Registry
	store  idempotency.Store
}

// New builds a Gate. The returned Gate owns a nonce.Registry; call
// Nonces().Start to begin its background sweep and Nonces().Stop to end it.
func New(cfg Config) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultTTLSeconds <= 0 {
		cfg.DefaultTTLSeconds = x402.DefaultTTLSeconds
	}
	store := cfg.IdempotencyStore
	if store == nil {
		store = idempotency.NewMemoryStore(cfg.Logger)
	}
	return &Gate{
		cfg:    cfg,
		nonces: nonce.New(cfg.Logger),
		store:  store,
	}
}

// Nonces exposes the Gate's nonce registry so callers can Start/Stop its
// background sweep alongside the server lifecycle.
func (g *Gate) Nonces() *nonce.Registry {
	return g.nonces
}

// bodyCapture wraps gin's ResponseWriter to buffer the eventual status,
// body, and headers for idempotency caching without altering what the
// client receives.
type bodyCapture struct {
	gin.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bodyCapture) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Price returns a gin.HandlerFunc that gates the wrapped route behind the
// payment-gate state machine for the given pricing, per the server-side
// algorithm: capture body, compute hash, check idempotency, check proof,
// verify, reserve nonce, then run the handler.
func (g *Gate) Price(pricing x402.PricingConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		ctx, span := traces.StartSpan(c.Request.Context(), "paygate.price")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		// CAPTURE_BODY
		var rawBody []byte
		if c.Request.Body != nil {
			b, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
				return
			}
			rawBody = b
			c.Request.Body = io.NopCloser(bytes.NewReader(b))
		}

		// COMPUTE_HASH
		requestHash := hash.Request(c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, rawBody)
		span.SetAttributes(traces.RequestHash(requestHash))

		idemKey := c.GetHeader("Idempotency-Key")

		// IDEMPOTENCY_LOOKUP
		if idemKey != "" {
			stored, err := g.store.Get(ctx, idemKey)
			if err == nil {
				if stored.RequestHash == requestHash {
					metrics.IdempotencyHitsTotal.WithLabelValues("replay").Inc()
					g.replay(c, stored)
					return
				}
				metrics.IdempotencyHitsTotal.WithLabelValues("conflict").Inc()
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error":          "idempotency key already used for a different request",
					"idempotencyKey": idemKey,
				})
				return
			}
			metrics.IdempotencyHitsTotal.WithLabelValues("miss").Inc()
		}

		// PROOF_CHECK
		proofHeader := proofHeaderFrom(c)
		if proofHeader == "" {
			g.issueChallenge(c, route, pricing, requestHash)
			return
		}

		// VERIFY
		if !g.cfg.Verifier.Verify(proofHeader, requestHash, pricing) {
			metrics.VerificationsTotal.WithLabelValues(pricing.SchemeOrDefault(), "rejected").Inc()
			g.reject(c, route, "invalid payment proof")
			return
		}
		metrics.VerificationsTotal.WithLabelValues(pricing.SchemeOrDefault(), "accepted").Inc()

		proof, err := x402.DecodeProofHeader(proofHeader)
		if err != nil {
			// Verify already decoded this header successfully; a failure here
			// would mean the header changed between calls, which cannot happen.
			g.reject(c, route, "invalid payment proof")
			return
		}

		// NONCE_CHECK
		expiresAt, err := time.Parse(time.RFC3339, proof.ExpiresAt)
		if err != nil {
			g.reject(c, route, "invalid payment proof")
			return
		}
		expiryMs := expiresAt.Add(nonceGraceSeconds * time.Second).UnixMilli()
		if !g.nonces.TryReserve(proof.Nonce, expiryMs) {
			metrics.NonceReplaysTotal.Inc()
			g.rejectReplay(c, route, "nonce already used")
			return
		}
		metrics.NonceRegistrySize.Set(float64(g.nonces.Size()))

		if g.cfg.OnVerified != nil {
			g.cfg.OnVerified(route, proof)
		}
		c.Set(proofContextKey, proof)

		// PROCEED
		if idemKey == "" {
			c.Next()
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		// POST-HANDLER
		stored := &idempotency.StoredResponse{
			RequestHash: requestHash,
			StatusCode:  capture.status,
			Body:        capture.buf.Bytes(),
			Headers:     snapshotHeaders(capture.Header()),
		}
		if stored.StatusCode == 0 {
			stored.StatusCode = http.StatusOK
		}
		ttl := time.Duration(g.cfg.DefaultTTLSeconds) * time.Second
		if err := g.store.Set(ctx, idemKey, stored, ttl); err != nil {
			g.cfg.Logger.ErrorContext(ctx, "idempotency store set failed", "error", err, "key", idemKey)
		}
	}
}

func (g *Gate) replay(c *gin.Context, stored *idempotency.StoredResponse) {
	for k, v := range stored.Headers {
		c.Header(k, v)
	}
	c.Header("X-Idempotent-Replay", "true")
	c.Data(stored.StatusCode, stored.Headers["Content-Type"], stored.Body)
	c.Abort()
}

func (g *Gate) issueChallenge(c *gin.Context, route string, pricing x402.PricingConfig, requestHash string) {
	ttl := pricing.TTL()
	challenge := &x402.Challenge{
		Version:     x402.Version,
		Scheme:      pricing.SchemeOrDefault(),
		Price:       pricing.Price,
		Asset:       pricing.Asset,
		Network:     pricing.NetworkOrDefault(),
		Recipient:   pricing.Recipient,
		Nonce:       idgen.Hex(16),
		ExpiresAt:   time.Now().Add(time.Duration(ttl) * time.Second).UTC().Format(time.RFC3339),
		RequestHash: requestHash,
		Description: pricing.Description,
	}

	metrics.ChallengesIssuedTotal.WithLabelValues(route).Inc()
	if g.cfg.OnChallengeIssued != nil {
		g.cfg.OnChallengeIssued(route, challenge)
	}

	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"x402": challenge})
}

func (g *Gate) reject(c *gin.Context, route string, reason string) {
	if g.cfg.OnRejected != nil {
		g.cfg.OnRejected(route, reason)
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "payment required: invalid or expired proof"})
}

// rejectReplay is like reject but surfaces a message mentioning "replay",
// since a replayed proof is a distinct, detectable condition from a proof
// that never verified in the first place — unlike invalid-proof rejection,
// there is no ambiguity to protect by staying generic here.
func (g *Gate) rejectReplay(c *gin.Context, route string, reason string) {
	if g.cfg.OnRejected != nil {
		g.cfg.OnRejected(route, reason)
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "payment required: nonce already used (replay)"})
}

// proofHeaderFrom returns the payment proof header value, accepting either
// the canonical X-Payment-Proof name or the X-402-Payment alias.
func proofHeaderFrom(c *gin.Context) string {
	if v := c.GetHeader("X-Payment-Proof"); v != "" {
		return v
	}
	return c.GetHeader("X-402-Payment")
}

// transportHeaders are per-connection negotiation artifacts (set by
// gzipMiddleware based on *this* request's Accept-Encoding) that must never
// be cached: a later replay may be served to a client that negotiated
// differently, and re-emitting them verbatim would mislabel the cached body.
var transportHeaders = []string{"Content-Encoding", "Vary", "Content-Length"}

func snapshotHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	for _, k := range transportHeaders {
		delete(out, http.CanonicalHeaderKey(k))
	}
	return out
}

const proofContextKey = "x402.payment_proof"

// GetPaymentProof retrieves the verified PaymentProof from the gin context,
// available to handlers running after a successful VERIFY/NONCE_CHECK.
func GetPaymentProof(c *gin.Context) *x402.PaymentProof {
	if v, ok := c.Get(proofContextKey); ok {
		if proof, ok := v.(*x402.PaymentProof); ok {
			return proof
		}
	}
	return nil
}
