package bitcoindwallet

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockedNode struct {
	mock.Mock
}

func (m *mockedNode) ListUnspentMinMax(minConf, maxConf int) ([]btcjson.ListUnspentResult, error) {
	args := m.Called(minConf, maxConf)

	var res []btcjson.ListUnspentResult
	if a := args.Get(0); a != nil {
		res = a.([]btcjson.ListUnspentResult)
	}
	return res, args.Error(1)
}

func (m *mockedNode) LockUnspent(unlock bool, ops []*wire.OutPoint) error {
	args := m.Called(unlock, ops)
	return args.Error(0)
}

func (m *mockedNode) GetTxOut(
	txHash *chainhash.Hash, index uint32, mempool bool,
) (*btcjson.GetTxOutResult, error) {
	args := m.Called(txHash, index, mempool)

	var res *btcjson.GetTxOutResult
	if a := args.Get(0); a != nil {
		res = a.(*btcjson.GetTxOutResult)
	}
	return res, args.Error(1)
}

func (m *mockedNode) GetNewAddress(account string) (btcutil.Address, error) {
	args := m.Called(account)

	var res btcutil.Address
	if a := args.Get(0); a != nil {
		res = a.(btcutil.Address)
	}
	return res, args.Error(1)
}

func (m *mockedNode) DumpPrivKey(address btcutil.Address) (*btcutil.WIF, error) {
	args := m.Called(address)

	var res *btcutil.WIF
	if a := args.Get(0); a != nil {
		res = a.(*btcutil.WIF)
	}
	return res, args.Error(1)
}

func (m *mockedNode) SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (*chainhash.Hash, error) {
	args := m.Called(tx, allowHighFees)

	var res *chainhash.Hash
	if a := args.Get(0); a != nil {
		res = a.(*chainhash.Hash)
	}
	return res, args.Error(1)
}

func (m *mockedNode) GetTransactionWatchOnly(
	txHash *chainhash.Hash, watchOnly bool,
) (*btcjson.GetTransactionResult, error) {
	args := m.Called(txHash, watchOnly)

	var res *btcjson.GetTransactionResult
	if a := args.Get(0); a != nil {
		res = a.(*btcjson.GetTransactionResult)
	}
	return res, args.Error(1)
}

func (m *mockedNode) GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error) {
	args := m.Called(txHash)

	var res *btcjson.TxRawResult
	if a := args.Get(0); a != nil {
		res = a.(*btcjson.TxRawResult)
	}
	return res, args.Error(1)
}

func (m *mockedNode) ImportAddressRescan(address string, account string, rescan bool) error {
	args := m.Called(address, account, rescan)
	return args.Error(0)
}

func (m *mockedNode) ImportPubKeyRescan(pubKey string, rescan bool) error {
	args := m.Called(pubKey, rescan)
	return args.Error(0)
}

func (m *mockedNode) Shutdown() {
	m.Called()
}

var net = &chaincfg.RegressionNetParams

func randomAddress(t *testing.T) string {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), net,
	)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func unspent(t *testing.T, vout uint32, btc float64) btcjson.ListUnspentResult {
	return btcjson.ListUnspentResult{
		TxID:      chainhash.HashH([]byte{byte(vout)}).String(),
		Vout:      vout,
		Address:   randomAddress(t),
		Amount:    btc,
		Spendable: true,
	}
}

func TestSelectUtxos(t *testing.T) {
	feeRate := uint64(2)

	t.Run("valid", func(t *testing.T) {
		node := &mockedNode{}
		unspents := []btcjson.ListUnspentResult{
			unspent(t, 0, 0.0001),
			unspent(t, 1, 0.5),
			unspent(t, 2, 0.2),
		}
		node.On("ListUnspentMinMax", mock.Anything, mock.Anything).Return(unspents, nil)
		node.On("LockUnspent", false, mock.Anything).Return(nil)
		node.On("LockUnspent", true, mock.Anything).Return(nil)
		node.On("GetTxOut", mock.Anything, mock.Anything, true).
			Return(&btcjson.GetTxOutResult{Confirmations: 1}, nil)

		svc := newService(node, net)
		ctx := context.Background()

		utxos, err := svc.SelectUtxos(ctx, 60_000_000, feeRate)
		require.NoError(t, err)
		require.Len(t, utxos, 2)
		require.Equal(t, uint64(50_000_000), utxos[0].Amount)
		require.Equal(t, uint64(20_000_000), utxos[1].Amount)

		// Locked coins are not selected again.
		utxos2, err := svc.SelectUtxos(ctx, 5000, feeRate)
		require.NoError(t, err)
		require.Len(t, utxos2, 1)
		require.Equal(t, uint64(10_000), utxos2[0].Amount)

		require.NoError(t, svc.UnlockUtxos(ctx, utxos))
		utxos3, err := svc.SelectUtxos(ctx, 40_000_000, feeRate)
		require.NoError(t, err)
		require.Len(t, utxos3, 1)
		require.Equal(t, uint64(50_000_000), utxos3[0].Amount)
	})

	t.Run("invalid", func(t *testing.T) {
		node := &mockedNode{}
		nonSpendable := unspent(t, 3, 1)
		nonSpendable.Spendable = false
		unspents := []btcjson.ListUnspentResult{unspent(t, 0, 0.0001), nonSpendable}
		node.On("ListUnspentMinMax", mock.Anything, mock.Anything).Return(unspents, nil)

		svc := newService(node, net)
		utxos, err := svc.SelectUtxos(context.Background(), 10_000, feeRate)
		require.ErrorIs(t, err, ports.ErrInsufficientFunds)
		require.Nil(t, utxos)
		node.AssertNotCalled(t, "LockUnspent", mock.Anything, mock.Anything)
	})
}

func TestSelectUtxosForgetsSpentLocks(t *testing.T) {
	feeRate := uint64(2)
	spent := unspent(t, 0, 0.5)
	other := unspent(t, 1, 0.2)
	spentHash, err := chainhash.NewHashFromStr(spent.TxID)
	require.NoError(t, err)

	node := &mockedNode{}
	node.On("ListUnspentMinMax", mock.Anything, mock.Anything).
		Return([]btcjson.ListUnspentResult{spent, other}, nil).Once()
	node.On("ListUnspentMinMax", mock.Anything, mock.Anything).
		Return([]btcjson.ListUnspentResult{other}, nil)
	node.On("LockUnspent", false, mock.Anything).Return(nil)
	node.On("GetTxOut", spentHash, spent.Vout, true).Return(nil, nil)

	svc := newService(node, net)
	ctx := context.Background()

	utxos, err := svc.SelectUtxos(ctx, 40_000_000, feeRate)
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	require.Len(t, svc.locked, 1)

	utxos, err = svc.SelectUtxos(ctx, 10_000_000, feeRate)
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	require.Equal(t, other.TxID, utxos[0].Txid)

	_, ok := svc.locked[outpointKey(spent.TxID, spent.Vout)]
	require.False(t, ok)
	require.Len(t, svc.locked, 1)
}

func TestGetTransaction(t *testing.T) {
	txid := chainhash.HashH([]byte("tx")).String()
	notFound := &btcjson.RPCError{
		Code:    btcjson.ErrRPCInvalidAddressOrKey,
		Message: "No such mempool or blockchain transaction",
	}

	t.Run("wallet", func(t *testing.T) {
		node := &mockedNode{}
		node.On("GetTransactionWatchOnly", mock.Anything, true).Return(
			&btcjson.GetTransactionResult{TxID: txid, Hex: "00", Confirmations: 3}, nil,
		)
		tx, err := newService(node, net).GetTransaction(context.Background(), txid)
		require.NoError(t, err)
		require.Equal(t, int64(3), tx.Confirmations)
		node.AssertNotCalled(t, "GetRawTransactionVerbose", mock.Anything)
	})

	t.Run("mempool", func(t *testing.T) {
		node := &mockedNode{}
		node.On("GetTransactionWatchOnly", mock.Anything, true).Return(nil, notFound)
		node.On("GetRawTransactionVerbose", mock.Anything).Return(
			&btcjson.TxRawResult{Txid: txid, Hex: "00"}, nil,
		)
		tx, err := newService(node, net).GetTransaction(context.Background(), txid)
		require.NoError(t, err)
		require.Zero(t, tx.Confirmations)
	})

	t.Run("not found", func(t *testing.T) {
		node := &mockedNode{}
		node.On("GetTransactionWatchOnly", mock.Anything, true).Return(nil, notFound)
		node.On("GetRawTransactionVerbose", mock.Anything).Return(nil, notFound)
		tx, err := newService(node, net).GetTransaction(context.Background(), txid)
		require.ErrorIs(t, err, ports.ErrTransactionNotFound)
		require.Nil(t, tx)
	})
}

func TestGetNewPrivateKey(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), net,
	)
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key, net, true)
	require.NoError(t, err)

	node := &mockedNode{}
	node.On("GetNewAddress", "").Return(addr, nil)
	node.On("DumpPrivKey", mock.Anything).Return(wif, nil)

	got, err := newService(node, net).GetNewPrivateKey(context.Background())
	require.NoError(t, err)
	require.True(t, got.PubKey().IsEqual(key.PubKey()))
}
