package simnetwallet

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlc-network/dlcd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

type chainTx struct {
	tx *wire.MsgTx
	// height is zero while the tx is in mempool.
	height int64
}

// Chain is an in-memory UTXO set with a mempool. Every transaction is fully
// script-validated before being accepted, locktimes included.
type Chain struct {
	net   *chaincfg.Params
	clock func() time.Time

	lock   *sync.RWMutex
	height int64
	utxos  map[wire.OutPoint]*wire.TxOut
	txs    map[chainhash.Hash]*chainTx
}

func NewChain(net *chaincfg.Params) *Chain {
	return &Chain{
		net:    net,
		clock:  time.Now,
		lock:   &sync.RWMutex{},
		utxos:  make(map[wire.OutPoint]*wire.TxOut),
		txs:    make(map[chainhash.Hash]*chainTx),
	}
}

func (c *Chain) Network() *chaincfg.Params {
	return c.net
}

// SetClock overrides the time used to check timestamp locktimes.
func (c *Chain) SetClock(clock func() time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.clock = clock
}

func (c *Chain) Height() int64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.height
}

// Fund creates a confirmed coin of amount sats paying to address.
func (c *Chain) Fund(address string, amount uint64) (*domain.Utxo, error) {
	script, err := c.addressScript(address)
	if err != nil {
		return nil, err
	}

	var prevHash chainhash.Hash
	if _, err := rand.Read(prevHash[:]); err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(amount), script))
	hash := tx.TxHash()

	c.lock.Lock()
	defer c.lock.Unlock()
	c.height++
	c.txs[hash] = &chainTx{tx, c.height}
	c.utxos[*wire.NewOutPoint(&hash, 0)] = tx.TxOut[0]

	return &domain.Utxo{
		Txid:    hash.String(),
		Vout:    0,
		Amount:  amount,
		Address: address,
	}, nil
}

// Broadcast validates tx against the current UTXO set and adds it to the
// mempool.
func (c *Chain) Broadcast(tx *wire.MsgTx) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	hash := tx.TxHash()
	if _, ok := c.txs[hash]; ok {
		return "", fmt.Errorf("transaction %s already known", hash)
	}
	if err := blockchain.CheckTransactionSanity(btcutil.NewTx(tx)); err != nil {
		return "", fmt.Errorf("invalid transaction: %w", err)
	}
	if err := c.checkLocktime(tx); err != nil {
		return "", err
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	var inputsAmount int64
	for _, in := range tx.TxIn {
		prevOut, ok := c.utxos[in.PreviousOutPoint]
		if !ok {
			return "", fmt.Errorf(
				"input %s is missing or already spent", in.PreviousOutPoint,
			)
		}
		fetcher.AddPrevOut(in.PreviousOutPoint, prevOut)
		inputsAmount += prevOut.Value
	}
	var outputsAmount int64
	for _, out := range tx.TxOut {
		outputsAmount += out.Value
	}
	if outputsAmount > inputsAmount {
		return "", fmt.Errorf("outputs amount exceeds inputs amount")
	}
	if err := c.checkSequenceLocks(tx); err != nil {
		return "", err
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prevOut := fetcher.FetchPrevOutput(in.PreviousOutPoint)
		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, i, txscript.StandardVerifyFlags, nil,
			sigHashes, prevOut.Value, fetcher,
		)
		if err != nil {
			return "", err
		}
		if err := vm.Execute(); err != nil {
			return "", fmt.Errorf("input %d script failed: %w", i, err)
		}
	}

	for _, in := range tx.TxIn {
		delete(c.utxos, in.PreviousOutPoint)
	}
	for i, out := range tx.TxOut {
		c.utxos[*wire.NewOutPoint(&hash, uint32(i))] = out
	}
	c.txs[hash] = &chainTx{tx: tx}

	log.WithField("txid", hash.String()).Debug("simnet: tx added to mempool")
	return hash.String(), nil
}

// Mine confirms every mempool tx in the first of n new blocks.
func (c *Chain) Mine(n int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i := 0; i < n; i++ {
		c.height++
		if i > 0 {
			continue
		}
		for _, tx := range c.txs {
			if tx.height == 0 {
				tx.height = c.height
			}
		}
	}
}

// Transaction returns tx and its number of confirmations.
func (c *Chain) Transaction(txid string) (*wire.MsgTx, int64, bool) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, 0, false
	}

	c.lock.RLock()
	defer c.lock.RUnlock()
	tx, ok := c.txs[*hash]
	if !ok {
		return nil, 0, false
	}
	if tx.height == 0 {
		return tx.tx, 0, true
	}
	return tx.tx, c.height - tx.height + 1, true
}

// Unspents lists the coins paying to address, mempool ones included.
func (c *Chain) Unspents(address string) ([]domain.Utxo, error) {
	script, err := c.addressScript(address)
	if err != nil {
		return nil, err
	}

	c.lock.RLock()
	defer c.lock.RUnlock()
	utxos := make([]domain.Utxo, 0)
	for outpoint, out := range c.utxos {
		if string(out.PkScript) != string(script) {
			continue
		}
		utxos = append(utxos, domain.Utxo{
			Txid:    outpoint.Hash.String(),
			Vout:    outpoint.Index,
			Amount:  uint64(out.Value),
			Address: address,
		})
	}
	return utxos, nil
}

// IsUnspent tells whether the coin is still in the UTXO set.
func (c *Chain) IsUnspent(u domain.Utxo) bool {
	hash, err := chainhash.NewHashFromStr(u.Txid)
	if err != nil {
		return false
	}
	c.lock.RLock()
	defer c.lock.RUnlock()
	_, ok := c.utxos[*wire.NewOutPoint(hash, u.Vout)]
	return ok
}

func (c *Chain) Balance(address string) (uint64, error) {
	utxos, err := c.Unspents(address)
	if err != nil {
		return 0, err
	}
	var balance uint64
	for _, u := range utxos {
		balance += u.Amount
	}
	return balance, nil
}

func (c *Chain) checkLocktime(tx *wire.MsgTx) error {
	if tx.LockTime == 0 {
		return nil
	}
	final := true
	for _, in := range tx.TxIn {
		if in.Sequence != wire.MaxTxInSequenceNum {
			final = false
			break
		}
	}
	if final {
		return nil
	}

	if tx.LockTime < txscript.LockTimeThreshold {
		if int64(tx.LockTime) > c.height {
			return fmt.Errorf("transaction locked until block %d", tx.LockTime)
		}
		return nil
	}
	if int64(tx.LockTime) > c.clock().Unix() {
		return fmt.Errorf(
			"transaction locked until %s",
			time.Unix(int64(tx.LockTime), 0).UTC().Format(time.RFC3339),
		)
	}
	return nil
}

// checkSequenceLocks enforces BIP68 block based relative locktimes.
func (c *Chain) checkSequenceLocks(tx *wire.MsgTx) error {
	if tx.Version < 2 {
		return nil
	}
	for i, in := range tx.TxIn {
		if in.Sequence&wire.SequenceLockTimeDisabled != 0 {
			continue
		}
		if in.Sequence&wire.SequenceLockTimeIsSeconds != 0 {
			return fmt.Errorf("input %d: time based relative locktime not supported", i)
		}
		delay := int64(in.Sequence & wire.SequenceLockTimeMask)
		if delay <= 0 {
			continue
		}
		var confirmations int64
		if prev, ok := c.txs[in.PreviousOutPoint.Hash]; ok && prev.height > 0 {
			confirmations = c.height - prev.height + 1
		}
		if confirmations < delay {
			return fmt.Errorf(
				"input %d locked for %d blocks, prevout has %d confirmations",
				i, delay, confirmations,
			)
		}
	}
	return nil
}

func (c *Chain) addressScript(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, c.net)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	return txscript.PayToAddrScript(addr)
}
