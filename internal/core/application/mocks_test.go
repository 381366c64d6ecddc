package application

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

type mockedWallet struct {
	mock.Mock
}

func (m *mockedWallet) SelectUtxos(
	ctx context.Context, amount, feeRate uint64,
) ([]domain.Utxo, error) {
	args := m.Called(ctx, amount, feeRate)

	var res []domain.Utxo
	if a := args.Get(0); a != nil {
		res = a.([]domain.Utxo)
	}
	return res, args.Error(1)
}

func (m *mockedWallet) LockUtxos(ctx context.Context, utxos []domain.Utxo) error {
	args := m.Called(ctx, utxos)
	return args.Error(0)
}

func (m *mockedWallet) UnlockUtxos(ctx context.Context, utxos []domain.Utxo) error {
	args := m.Called(ctx, utxos)
	return args.Error(0)
}

func (m *mockedWallet) GetNewAddress(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockedWallet) GetNewPrivateKey(ctx context.Context) (*btcec.PrivateKey, error) {
	args := m.Called(ctx)

	var res *btcec.PrivateKey
	if a := args.Get(0); a != nil {
		res = a.(*btcec.PrivateKey)
	}
	return res, args.Error(1)
}

func (m *mockedWallet) DumpPrivKey(
	ctx context.Context, address string,
) (*btcec.PrivateKey, error) {
	args := m.Called(ctx, address)

	var res *btcec.PrivateKey
	if a := args.Get(0); a != nil {
		res = a.(*btcec.PrivateKey)
	}
	return res, args.Error(1)
}

func (m *mockedWallet) BroadcastTransaction(ctx context.Context, txHex string) (string, error) {
	args := m.Called(ctx, txHex)
	return args.String(0), args.Error(1)
}

func (m *mockedWallet) GetTransaction(
	ctx context.Context, txid string,
) (*ports.WalletTransaction, error) {
	args := m.Called(ctx, txid)

	var res *ports.WalletTransaction
	if a := args.Get(0); a != nil {
		res = a.(*ports.WalletTransaction)
	}
	return res, args.Error(1)
}

func (m *mockedWallet) ImportAddress(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

func (m *mockedWallet) ImportPublicKey(ctx context.Context, pubkey string) error {
	args := m.Called(ctx, pubkey)
	return args.Error(0)
}

func (m *mockedWallet) Close() {
	m.Called()
}

type mockedEngine struct {
	mock.Mock
}

func (m *mockedEngine) PayoutAddress(pubkey string) (string, error) {
	args := m.Called(pubkey)
	return args.String(0), args.Error(1)
}

func (m *mockedEngine) CreateDlcTransactions(
	params ports.DlcParams,
) (*ports.DlcTransactions, error) {
	args := m.Called(params)

	var res *ports.DlcTransactions
	if a := args.Get(0); a != nil {
		res = a.(*ports.DlcTransactions)
	}
	return res, args.Error(1)
}

func (m *mockedEngine) SignCets(
	cetsHex []string, fund ports.FundingOutput, privkey string,
) ([]string, error) {
	args := m.Called(cetsHex, fund, privkey)

	var res []string
	if a := args.Get(0); a != nil {
		res = a.([]string)
	}
	return res, args.Error(1)
}

func (m *mockedEngine) VerifyCetSignatures(
	cetsHex []string, fund ports.FundingOutput, signatures []string, pubkey string,
) bool {
	args := m.Called(cetsHex, fund, signatures, pubkey)
	return args.Bool(0)
}

func (m *mockedEngine) SignRefund(
	refundTxHex string, fund ports.FundingOutput, privkey string,
) (string, error) {
	args := m.Called(refundTxHex, fund, privkey)
	return args.String(0), args.Error(1)
}

func (m *mockedEngine) VerifyRefundSignature(
	refundTxHex string, fund ports.FundingOutput, signature, pubkey string,
) bool {
	args := m.Called(refundTxHex, fund, signature, pubkey)
	return args.Bool(0)
}

func (m *mockedEngine) SignFundingInputs(
	fundTxHex string, utxos []domain.Utxo, privkeys []string,
) ([]domain.FundingSignature, error) {
	args := m.Called(fundTxHex, utxos, privkeys)

	var res []domain.FundingSignature
	if a := args.Get(0); a != nil {
		res = a.([]domain.FundingSignature)
	}
	return res, args.Error(1)
}

func (m *mockedEngine) VerifyFundingSignatures(
	fundTxHex string, utxos []domain.Utxo, signatures []domain.FundingSignature,
) bool {
	args := m.Called(fundTxHex, utxos, signatures)
	return args.Bool(0)
}

func (m *mockedEngine) FinalizeFundingTx(
	fundTxHex string, utxos []domain.Utxo, signatures []domain.FundingSignature,
) (string, error) {
	args := m.Called(fundTxHex, utxos, signatures)
	return args.String(0), args.Error(1)
}

func (m *mockedEngine) FinalizeCet(
	cetHex string, fund ports.FundingOutput, localSignature, remoteSignature string,
) (string, error) {
	args := m.Called(cetHex, fund, localSignature, remoteSignature)
	return args.String(0), args.Error(1)
}

func (m *mockedEngine) FinalizeRefund(
	refundTxHex string, fund ports.FundingOutput, localSignature, remoteSignature string,
) (string, error) {
	args := m.Called(refundTxHex, fund, localSignature, remoteSignature)
	return args.String(0), args.Error(1)
}

func (m *mockedEngine) ClaimCetOutput(claim ports.CetClaim) (string, error) {
	args := m.Called(claim)
	return args.String(0), args.Error(1)
}

func (m *mockedEngine) VerifyAttestation(
	oracle domain.OracleInfo, attestation domain.OracleAttestation,
) error {
	args := m.Called(oracle, attestation)
	return args.Error(0)
}

func (m *mockedEngine) DecodeTransaction(txHex string) (*ports.DecodedTx, error) {
	args := m.Called(txHex)

	var res *ports.DecodedTx
	if a := args.Get(0); a != nil {
		res = a.(*ports.DecodedTx)
	}
	return res, args.Error(1)
}

type mockedOracle struct {
	mock.Mock
}

func (m *mockedOracle) GetAnnouncement(
	ctx context.Context, assetId string, maturityTime int64,
) (*domain.OracleAnnouncement, error) {
	args := m.Called(ctx, assetId, maturityTime)

	var res *domain.OracleAnnouncement
	if a := args.Get(0); a != nil {
		res = a.(*domain.OracleAnnouncement)
	}
	return res, args.Error(1)
}

func (m *mockedOracle) GetAttestation(
	ctx context.Context, assetId string, maturityTime int64,
) (*domain.OracleAttestation, error) {
	args := m.Called(ctx, assetId, maturityTime)

	var res *domain.OracleAttestation
	if a := args.Get(0); a != nil {
		res = a.(*domain.OracleAttestation)
	}
	return res, args.Error(1)
}
