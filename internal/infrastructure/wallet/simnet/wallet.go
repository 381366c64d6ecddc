package simnetwallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
)

// Wallet is a single-party key store spending P2WPKH coins of a Chain.
type Wallet struct {
	chain *Chain

	lock    *sync.Mutex
	keys    map[string]*btcec.PrivateKey
	locked  map[string]domain.Utxo
	watched map[string]struct{}
}

func NewWallet(chain *Chain) *Wallet {
	return &Wallet{
		chain:   chain,
		lock:    &sync.Mutex{},
		keys:    make(map[string]*btcec.PrivateKey),
		locked:  make(map[string]domain.Utxo),
		watched: make(map[string]struct{}),
	}
}

// Fund sends amount sats to a new address of the wallet.
func (w *Wallet) Fund(ctx context.Context, amount uint64) (*domain.Utxo, error) {
	addr, err := w.GetNewAddress(ctx)
	if err != nil {
		return nil, err
	}
	return w.chain.Fund(addr, amount)
}

// Balance sums the coins of owned and watched addresses.
func (w *Wallet) Balance() (uint64, error) {
	w.lock.Lock()
	addresses := make([]string, 0, len(w.keys)+len(w.watched))
	for addr := range w.keys {
		addresses = append(addresses, addr)
	}
	for addr := range w.watched {
		if _, ok := w.keys[addr]; !ok {
			addresses = append(addresses, addr)
		}
	}
	w.lock.Unlock()

	var balance uint64
	for _, addr := range addresses {
		amount, err := w.chain.Balance(addr)
		if err != nil {
			return 0, err
		}
		balance += amount
	}
	return balance, nil
}

func (w *Wallet) SelectUtxos(
	_ context.Context, amount, feeRate uint64,
) ([]domain.Utxo, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.pruneLocked()

	candidates := make([]domain.Utxo, 0)
	for addr := range w.keys {
		utxos, err := w.chain.Unspents(addr)
		if err != nil {
			return nil, err
		}
		for _, u := range utxos {
			if _, ok := w.locked[outpointKey(u)]; ok {
				continue
			}
			candidates = append(candidates, u)
		}
	}

	selected, ok := domain.SelectCoins(candidates, amount, feeRate)
	if !ok {
		return nil, ports.ErrInsufficientFunds
	}
	for _, u := range selected {
		w.locked[outpointKey(u)] = u
	}
	return selected, nil
}

func (w *Wallet) LockUtxos(_ context.Context, utxos []domain.Utxo) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	for _, u := range utxos {
		w.locked[outpointKey(u)] = u
	}
	return nil
}

func (w *Wallet) UnlockUtxos(_ context.Context, utxos []domain.Utxo) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	for _, u := range utxos {
		delete(w.locked, outpointKey(u))
	}
	return nil
}

// LockedUtxos is the number of unspent coins currently reserved.
func (w *Wallet) LockedUtxos() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.pruneLocked()
	return len(w.locked)
}

// pruneLocked forgets the reservations of coins spent on chain.
func (w *Wallet) pruneLocked() {
	for key, u := range w.locked {
		if !w.chain.IsUnspent(u) {
			delete(w.locked, key)
		}
	}
}

func (w *Wallet) GetNewAddress(_ context.Context) (string, error) {
	_, addr, err := w.newKey()
	return addr, err
}

func (w *Wallet) GetNewPrivateKey(_ context.Context) (*btcec.PrivateKey, error) {
	key, _, err := w.newKey()
	return key, err
}

func (w *Wallet) DumpPrivKey(_ context.Context, address string) (*btcec.PrivateKey, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	key, ok := w.keys[address]
	if !ok {
		return nil, fmt.Errorf("address %s not found in wallet", address)
	}
	return key, nil
}

func (w *Wallet) BroadcastTransaction(_ context.Context, txHex string) (string, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return "", fmt.Errorf("invalid tx hex: %w", err)
	}
	tx, err := btcutil.NewTxFromBytes(buf)
	if err != nil {
		return "", fmt.Errorf("invalid tx: %w", err)
	}
	return w.chain.Broadcast(tx.MsgTx())
}

func (w *Wallet) GetTransaction(
	_ context.Context, txid string,
) (*ports.WalletTransaction, error) {
	tx, confirmations, ok := w.chain.Transaction(txid)
	if !ok {
		return nil, ports.ErrTransactionNotFound
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return &ports.WalletTransaction{
		Txid:          txid,
		Hex:           hex.EncodeToString(buf.Bytes()),
		Confirmations: confirmations,
	}, nil
}

func (w *Wallet) ImportAddress(_ context.Context, address string) error {
	if _, err := btcutil.DecodeAddress(address, w.chain.net); err != nil {
		return err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	w.watched[address] = struct{}{}
	return nil
}

// ImportPublicKey watches the P2WPKH address of pubkey.
func (w *Wallet) ImportPublicKey(_ context.Context, pubkey string) error {
	buf, err := hex.DecodeString(pubkey)
	if err != nil {
		return fmt.Errorf("invalid pubkey hex: %w", err)
	}
	key, err := btcec.ParsePubKey(buf)
	if err != nil {
		return err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.SerializeCompressed()), w.chain.net,
	)
	if err != nil {
		return err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	w.watched[addr.EncodeAddress()] = struct{}{}
	return nil
}

func (w *Wallet) Close() {}

func (w *Wallet) newKey() (*btcec.PrivateKey, string, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, "", err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), w.chain.net,
	)
	if err != nil {
		return nil, "", err
	}

	w.lock.Lock()
	defer w.lock.Unlock()
	w.keys[addr.EncodeAddress()] = key
	return key, addr.EncodeAddress(), nil
}

func outpointKey(u domain.Utxo) string {
	return fmt.Sprintf("%s:%d", u.Txid, u.Vout)
}

var _ ports.WalletService = (*Wallet)(nil)
