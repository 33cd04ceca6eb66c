// Package payermode selects the HMAC mock verifier/payer pair or the
// on-chain Solana pair from config, shared by the HTTP server and the MCP
// server so both pick the same payment backend from the same environment.
package payermode

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402gate/gate/internal/config"
	"github.com/x402gate/gate/internal/pay"
	"github.com/x402gate/gate/internal/solanapay"
	"github.com/x402gate/gate/internal/verify"
)

// Build returns a Verifier for the configured payment mode, plus a Payer
// when the config carries the credentials needed to actually spend funds.
// payer is nil (not an error) when verification is possible but no spending
// key was configured - callers that only need to gate requests still work.
func Build(cfg *config.Config) (verify.Verifier, pay.Payer, error) {
	switch cfg.PaymentMode {
	case config.ModeSolana:
		client := solanapay.NewClient(cfg.SolanaRPCURL)
		mint := solana.MustPublicKeyFromBase58(solanapay.USDCMintDevnet)
		commitment := rpc.CommitmentType(cfg.Commitment)

		verifier := verify.NewSolanaVerifier(client, mint, commitment, big.NewInt(cfg.AmountTolerance))

		var payer pay.Payer
		if cfg.SolanaPrivateKey != "" {
			solanaPayer, err := pay.NewSolanaPayer(client, cfg.SolanaPrivateKey, mint, commitment)
			if err != nil {
				return nil, nil, fmt.Errorf("construct solana payer: %w", err)
			}
			payer = solanaPayer
		}
		return verifier, payer, nil

	case config.ModeMock, "":
		verifier := verify.NewMockVerifier(cfg.MockSecret)
		payer := pay.NewMockPayer(cfg.MockSecret, cfg.MockPayerAddr)
		return verifier, payer, nil

	default:
		return nil, nil, fmt.Errorf("unknown payment mode %q", cfg.PaymentMode)
	}
}
