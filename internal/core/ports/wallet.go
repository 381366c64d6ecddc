package ports

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dlc-network/dlcd/internal/core/domain"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")
)

type WalletService interface {
	// SelectUtxos reserves enough coins to cover amount plus the funding fee
	// share at feeRate for the number of selected coins.
	SelectUtxos(ctx context.Context, amount, feeRate uint64) ([]domain.Utxo, error)
	LockUtxos(ctx context.Context, utxos []domain.Utxo) error
	UnlockUtxos(ctx context.Context, utxos []domain.Utxo) error
	GetNewAddress(ctx context.Context) (string, error)
	GetNewPrivateKey(ctx context.Context) (*btcec.PrivateKey, error)
	DumpPrivKey(ctx context.Context, address string) (*btcec.PrivateKey, error)
	BroadcastTransaction(ctx context.Context, txHex string) (string, error)
	GetTransaction(ctx context.Context, txid string) (*WalletTransaction, error)
	ImportAddress(ctx context.Context, address string) error
	ImportPublicKey(ctx context.Context, pubkey string) error
	Close()
}

type WalletTransaction struct {
	Txid          string
	Hex           string
	Confirmations int64
}
