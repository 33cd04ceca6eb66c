package solanapay

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// MemoInstruction builds an unsigned SPL-memo instruction carrying text.
// Memo instructions never require signer accounts.
func MemoInstruction(text string) solana.Instruction {
	return solana.NewInstruction(memoProgramID, solana.AccountMetaSlice{}, []byte(text))
}

// TransferCheckedMemoTx builds (but does not sign or submit) a transaction
// moving amount base units of mint from senderATA to recipientATA, with a
// memo binding the transfer to a specific nonce|requestHash pair.
func TransferCheckedMemoTx(
	ctx context.Context,
	client *Client,
	feePayer solana.PublicKey,
	senderATA, recipientATA, mint, authority solana.PublicKey,
	amount uint64,
	memo string,
) (*solana.Transaction, error) {
	transferIx := token.NewTransferCheckedInstruction(
		amount,
		USDCDecimals,
		senderATA,
		mint,
		recipientATA,
		authority,
		nil,
	).Build()

	memoIx := MemoInstruction(memo)

	blockhash, err := client.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transferIx, memoIx},
		blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return nil, fmt.Errorf("solanapay: build transaction: %w", err)
	}
	return tx, nil
}

// SignWith signs tx for every account the single keypair controls.
func SignWith(tx *solana.Transaction, key solana.PrivateKey) error {
	_, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(key.PublicKey()) {
			return &key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("solanapay: sign transaction: %w", err)
	}
	return nil
}
