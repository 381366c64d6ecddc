package bitcoindwallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const minConfirmations = 1

// node is the subset of rpcclient.Client methods used by the wallet.
type node interface {
	ListUnspentMinMax(minConf, maxConf int) ([]btcjson.ListUnspentResult, error)
	LockUnspent(unlock bool, ops []*wire.OutPoint) error
	GetTxOut(
		txHash *chainhash.Hash, index uint32, mempool bool,
	) (*btcjson.GetTxOutResult, error)
	GetNewAddress(account string) (btcutil.Address, error)
	DumpPrivKey(address btcutil.Address) (*btcutil.WIF, error)
	SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (*chainhash.Hash, error)
	GetTransactionWatchOnly(
		txHash *chainhash.Hash, watchOnly bool,
	) (*btcjson.GetTransactionResult, error)
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
	ImportAddressRescan(address string, account string, rescan bool) error
	ImportPubKeyRescan(pubKey string, rescan bool) error
	Shutdown()
}

type Config struct {
	Host     string
	User     string
	Password string
	Network  *chaincfg.Params
}

type service struct {
	node node
	net  *chaincfg.Params

	lock   *sync.Mutex
	locked map[string]wire.OutPoint
}

// NewService connects to a bitcoind node through its JSON-RPC interface.
// The node wallet must hold only P2WPKH coins to be spent in contracts.
func NewService(cfg Config) (ports.WalletService, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("missing bitcoind host")
	}
	if cfg.Network == nil {
		return nil, fmt.Errorf("missing network")
	}
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		HTTPPostMode: true,
		DisableTLS:   true,
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Password,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bitcoind: %w", err)
	}
	return newService(client, cfg.Network), nil
}

func newService(node node, net *chaincfg.Params) *service {
	return &service{
		node:   node,
		net:    net,
		lock:   &sync.Mutex{},
		locked: make(map[string]wire.OutPoint),
	}
}

func (s *service) SelectUtxos(
	_ context.Context, amount, feeRate uint64,
) ([]domain.Utxo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.pruneLocked()

	unspents, err := s.node.ListUnspentMinMax(minConfirmations, 9999999)
	if err != nil {
		return nil, fmt.Errorf("failed to list unspents: %w", err)
	}

	candidates := make([]domain.Utxo, 0, len(unspents))
	for _, u := range unspents {
		if !u.Spendable {
			continue
		}
		if _, ok := s.locked[outpointKey(u.TxID, u.Vout)]; ok {
			continue
		}
		if !s.isP2WPKH(u.Address) {
			continue
		}
		value, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			continue
		}
		candidates = append(candidates, domain.Utxo{
			Txid:    u.TxID,
			Vout:    u.Vout,
			Amount:  uint64(value),
			Address: u.Address,
		})
	}

	selected, ok := domain.SelectCoins(candidates, amount, feeRate)
	if !ok {
		return nil, ports.ErrInsufficientFunds
	}
	if err := s.lockUtxos(selected); err != nil {
		return nil, err
	}
	return selected, nil
}

func (s *service) LockUtxos(_ context.Context, utxos []domain.Utxo) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lockUtxos(utxos)
}

func (s *service) UnlockUtxos(_ context.Context, utxos []domain.Utxo) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	outpoints, err := toOutpoints(utxos)
	if err != nil {
		return err
	}
	if err := s.node.LockUnspent(true, outpoints); err != nil {
		log.WithError(err).Warn("failed to unlock coins on node")
	}
	for _, u := range utxos {
		delete(s.locked, outpointKey(u.Txid, u.Vout))
	}
	return nil
}

func (s *service) GetNewAddress(_ context.Context) (string, error) {
	addr, err := s.node.GetNewAddress("")
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (s *service) GetNewPrivateKey(ctx context.Context) (*btcec.PrivateKey, error) {
	addr, err := s.GetNewAddress(ctx)
	if err != nil {
		return nil, err
	}
	return s.DumpPrivKey(ctx, addr)
}

func (s *service) DumpPrivKey(_ context.Context, address string) (*btcec.PrivateKey, error) {
	addr, err := btcutil.DecodeAddress(address, s.net)
	if err != nil {
		return nil, err
	}
	wif, err := s.node.DumpPrivKey(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dump key for %s: %w", address, err)
	}
	return wif.PrivKey, nil
}

func (s *service) BroadcastTransaction(_ context.Context, txHex string) (string, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return "", fmt.Errorf("invalid tx hex: %w", err)
	}
	tx, err := btcutil.NewTxFromBytes(buf)
	if err != nil {
		return "", fmt.Errorf("invalid tx: %w", err)
	}
	hash, err := s.node.SendRawTransaction(tx.MsgTx(), false)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// GetTransaction looks the tx up in the node wallet first, then in the
// mempool and txindex.
func (s *service) GetTransaction(
	_ context.Context, txid string,
) (*ports.WalletTransaction, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("invalid txid: %w", err)
	}

	tx, err := s.node.GetTransactionWatchOnly(hash, true)
	if err == nil {
		return &ports.WalletTransaction{
			Txid:          tx.TxID,
			Hex:           tx.Hex,
			Confirmations: tx.Confirmations,
		}, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	rawTx, err := s.node.GetRawTransactionVerbose(hash)
	if err != nil {
		if isNotFound(err) {
			return nil, ports.ErrTransactionNotFound
		}
		return nil, err
	}
	return &ports.WalletTransaction{
		Txid:          rawTx.Txid,
		Hex:           rawTx.Hex,
		Confirmations: int64(rawTx.Confirmations),
	}, nil
}

func (s *service) ImportAddress(_ context.Context, address string) error {
	return s.node.ImportAddressRescan(address, "", false)
}

func (s *service) ImportPublicKey(_ context.Context, pubkey string) error {
	return s.node.ImportPubKeyRescan(pubkey, false)
}

func (s *service) Close() {
	s.node.Shutdown()
}

func (s *service) lockUtxos(utxos []domain.Utxo) error {
	outpoints, err := toOutpoints(utxos)
	if err != nil {
		return err
	}
	if err := s.node.LockUnspent(false, outpoints); err != nil {
		return fmt.Errorf("failed to lock coins: %w", err)
	}
	for i, u := range utxos {
		s.locked[outpointKey(u.Txid, u.Vout)] = *outpoints[i]
	}
	return nil
}

// pruneLocked forgets the reservations of coins spent by a transaction
// known to the node, mempool included. The node drops its own lock once a
// coin is spent.
func (s *service) pruneLocked() {
	for key, outpoint := range s.locked {
		out, err := s.node.GetTxOut(&outpoint.Hash, outpoint.Index, true)
		if err != nil {
			log.WithError(err).WithField("outpoint", key).Warn(
				"failed to check locked coin",
			)
			continue
		}
		if out == nil {
			delete(s.locked, key)
		}
	}
}

func (s *service) isP2WPKH(address string) bool {
	addr, err := btcutil.DecodeAddress(address, s.net)
	if err != nil {
		return false
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return false
	}
	return txscript.IsPayToWitnessPubKeyHash(script)
}

func toOutpoints(utxos []domain.Utxo) ([]*wire.OutPoint, error) {
	outpoints := make([]*wire.OutPoint, 0, len(utxos))
	for _, u := range utxos {
		hash, err := chainhash.NewHashFromStr(u.Txid)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo txid %s: %w", u.Txid, err)
		}
		outpoints = append(outpoints, wire.NewOutPoint(hash, u.Vout))
	}
	return outpoints, nil
}

func outpointKey(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

func isNotFound(err error) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCInvalidAddressOrKey
}
