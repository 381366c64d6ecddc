package ports

import "github.com/dlc-network/dlcd/internal/core/domain"

// DlcParams are the public inputs both parties build the transaction set
// from. Local is the offering party.
type DlcParams struct {
	LocalInputs      domain.PartyInputs
	RemoteInputs     domain.PartyInputs
	LocalCollateral  uint64
	RemoteCollateral uint64
	FeeRate          uint64
	Outcomes         []domain.Outcome
	MaturityTime     int64
	RefundLocktime   int64
	OracleInfo       domain.OracleInfo
}

type DlcTransactions struct {
	FundTxHex       string
	FundTxId        string
	FundOutputIndex uint32
	FundOutputValue uint64
	FundAddress     string
	RefundTxHex     string
	// LocalCetsHex are the CETs the offerer can publish, RemoteCetsHex the
	// accepter ones. The publisher payout of a CET is locked to the oracle
	// attestation of its outcome.
	LocalCetsHex  []string
	RemoteCetsHex []string
}

// CetClaim spends the publisher payout of a CET with its sweep key tweaked
// by the oracle attestation.
type CetClaim struct {
	CetHex            string
	OracleInfo        domain.OracleInfo
	Outcome           domain.Outcome
	OracleSignatures  []string
	SweepPrivateKey   string
	FallbackPublicKey string
	Address           string
	FeeRate           uint64
}

// FundingOutput identifies the 2-of-2 output spent by CETs and refund.
type FundingOutput struct {
	LocalFundPublicKey  string
	RemoteFundPublicKey string
	Value               uint64
}

type DecodedTx struct {
	Txid    string
	Outputs []TxOutput
}

type TxOutput struct {
	Address string
	Amount  uint64
}

type CryptoEngine interface {
	PayoutAddress(pubkey string) (string, error)
	CreateDlcTransactions(params DlcParams) (*DlcTransactions, error)

	SignCets(cetsHex []string, fund FundingOutput, privkey string) ([]string, error)
	VerifyCetSignatures(
		cetsHex []string, fund FundingOutput, signatures []string, pubkey string,
	) bool
	SignRefund(refundTxHex string, fund FundingOutput, privkey string) (string, error)
	VerifyRefundSignature(
		refundTxHex string, fund FundingOutput, signature, pubkey string,
	) bool

	SignFundingInputs(
		fundTxHex string, utxos []domain.Utxo, privkeys []string,
	) ([]domain.FundingSignature, error)
	VerifyFundingSignatures(
		fundTxHex string, utxos []domain.Utxo, signatures []domain.FundingSignature,
	) bool
	FinalizeFundingTx(
		fundTxHex string, utxos []domain.Utxo, signatures []domain.FundingSignature,
	) (string, error)

	FinalizeCet(
		cetHex string, fund FundingOutput, localSignature, remoteSignature string,
	) (string, error)
	FinalizeRefund(
		refundTxHex string, fund FundingOutput, localSignature, remoteSignature string,
	) (string, error)

	ClaimCetOutput(claim CetClaim) (string, error)

	VerifyAttestation(
		oracle domain.OracleInfo, attestation domain.OracleAttestation,
	) error
	DecodeTransaction(txHex string) (*DecodedTx, error)
}
