package txbuilder

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
)

type txBuilder struct {
	net *chaincfg.Params
}

// NewTxBuilder returns a DLC engine producing a 2-of-2 P2WSH funding
// transaction, a timelocked refund and, for each party, one CET per outcome.
// CETs and refund are signed with ECDSA over the funding witness script.
func NewTxBuilder(net *chaincfg.Params) ports.CryptoEngine {
	return &txBuilder{net}
}

func (b *txBuilder) PayoutAddress(pubkey string) (string, error) {
	key, err := parsePubKey(pubkey)
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.SerializeCompressed()), b.net,
	)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (b *txBuilder) CreateDlcTransactions(
	params ports.DlcParams,
) (*ports.DlcTransactions, error) {
	if params.LocalCollateral > math.MaxInt64/2 || params.RemoteCollateral > math.MaxInt64/2 {
		return nil, fmt.Errorf("collateral out of range")
	}
	total := params.LocalCollateral + params.RemoteCollateral
	for i, outcome := range params.Outcomes {
		if !outcome.Distributes(total) {
			return nil, fmt.Errorf("outcome %d does not distribute the collateral", i)
		}
	}

	fund := ports.FundingOutput{
		LocalFundPublicKey:  params.LocalInputs.FundPublicKey,
		RemoteFundPublicKey: params.RemoteInputs.FundPublicKey,
		Value:               total + 2*domain.PartySettlementFee(params.FeeRate),
	}
	fundScript, err := b.fundingScript(fund)
	if err != nil {
		return nil, err
	}

	fundTx, err := b.buildFundingTx(params, fund.Value, fundScript.pkScript)
	if err != nil {
		return nil, err
	}

	fundOutputIndex := -1
	for i, out := range fundTx.TxOut {
		if out.Value == int64(fund.Value) &&
			string(out.PkScript) == string(fundScript.pkScript) {
			fundOutputIndex = i
			break
		}
	}
	if fundOutputIndex < 0 {
		return nil, fmt.Errorf("funding output not found")
	}
	fundTxHash := fundTx.TxHash()
	fundOutpoint := wire.NewOutPoint(&fundTxHash, uint32(fundOutputIndex))

	localScript, err := b.addressScript(params.LocalInputs.FinalAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid local final address: %w", err)
	}
	remoteScript, err := b.addressScript(params.RemoteInputs.FinalAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid remote final address: %w", err)
	}
	refundTx, err := buildSpendingTx(fundOutpoint, params.RefundLocktime, []*wire.TxOut{
		wire.NewTxOut(int64(params.LocalCollateral), localScript),
		wire.NewTxOut(int64(params.RemoteCollateral), remoteScript),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build refund tx: %w", err)
	}

	localCets, err := b.buildCets(params, fundOutpoint, true)
	if err != nil {
		return nil, err
	}
	remoteCets, err := b.buildCets(params, fundOutpoint, false)
	if err != nil {
		return nil, err
	}

	fundTxHex, err := serializeTx(fundTx)
	if err != nil {
		return nil, err
	}
	refundTxHex, err := serializeTx(refundTx)
	if err != nil {
		return nil, err
	}

	return &ports.DlcTransactions{
		FundTxHex:       fundTxHex,
		FundTxId:        fundTxHash.String(),
		FundOutputIndex: uint32(fundOutputIndex),
		FundOutputValue: fund.Value,
		FundAddress:     fundScript.address,
		RefundTxHex:     refundTxHex,
		LocalCetsHex:    localCets,
		RemoteCetsHex:   remoteCets,
	}, nil
}

// buildCets returns one CET per outcome for the offerer when byLocal is set,
// for the accepter otherwise. In every CET the publisher payout is locked to
// its sweep key tweaked by the outcome attestation point, and falls back to
// the other party after CetFallbackDelay blocks. The other party payout is
// paid to its final address.
func (b *txBuilder) buildCets(
	params ports.DlcParams, fundOutpoint *wire.OutPoint, byLocal bool,
) ([]string, error) {
	publisher, other := params.LocalInputs, params.RemoteInputs
	if !byLocal {
		publisher, other = other, publisher
	}
	publisherKey, err := parsePubKey(publisher.SweepPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep key: %w", err)
	}
	otherKey, err := parsePubKey(other.SweepPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep key: %w", err)
	}
	otherScript, err := b.addressScript(other.FinalAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid final address: %w", err)
	}

	points := newOutcomePoints(params.OracleInfo)
	cets := make([]string, 0, len(params.Outcomes))
	for i, outcome := range params.Outcomes {
		publisherPayout, otherPayout := outcome.LocalPayout, outcome.RemotePayout
		if !byLocal {
			publisherPayout, otherPayout = otherPayout, publisherPayout
		}

		outputs := []*wire.TxOut{wire.NewTxOut(int64(otherPayout), otherScript)}
		if publisherPayout >= domain.DustLimit {
			point, err := points.outcomePoint(outcome)
			if err != nil {
				return nil, fmt.Errorf("outcome %d: %w", i, err)
			}
			script, err := newCetOutputScript(publisherKey, otherKey, point)
			if err != nil {
				return nil, fmt.Errorf("outcome %d: %w", i, err)
			}
			outputs = append(outputs, wire.NewTxOut(int64(publisherPayout), script.pkScript))
		}

		cet, err := buildSpendingTx(fundOutpoint, params.MaturityTime, outputs)
		if err != nil {
			return nil, fmt.Errorf("failed to build cet %d: %w", i, err)
		}
		cetHex, err := serializeTx(cet)
		if err != nil {
			return nil, err
		}
		cets = append(cets, cetHex)
	}
	return cets, nil
}

func (b *txBuilder) buildFundingTx(
	params ports.DlcParams, fundValue uint64, fundPkScript []byte,
) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)
	seen := make(map[wire.OutPoint]struct{})

	parties := []struct {
		inputs     domain.PartyInputs
		collateral uint64
	}{
		{params.LocalInputs, params.LocalCollateral},
		{params.RemoteInputs, params.RemoteCollateral},
	}
	for _, party := range parties {
		for _, u := range party.inputs.Utxos {
			outpoint, err := toOutpoint(u)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[*outpoint]; ok {
				return nil, fmt.Errorf("duplicated funding input %s", outpoint)
			}
			seen[*outpoint] = struct{}{}
			tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
		}
	}

	tx.AddTxOut(wire.NewTxOut(int64(fundValue), fundPkScript))

	for _, party := range parties {
		numInputs := len(party.inputs.Utxos)
		required := party.collateral + domain.PartyFundingFee(numInputs, params.FeeRate)
		if party.inputs.UtxosAmount() < required {
			return nil, fmt.Errorf(
				"party inputs amount %d not enough to cover %d",
				party.inputs.UtxosAmount(), required,
			)
		}
		change := domain.PartyChange(
			party.inputs.UtxosAmount(), party.collateral, numInputs, params.FeeRate,
		)
		if change <= 0 {
			continue
		}
		script, err := b.addressScript(party.inputs.ChangeAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid change address: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(int64(change), script))
	}

	txsort.InPlaceSort(tx)
	return tx, nil
}

// buildSpendingTx spends the funding output, dropping outputs below dust.
func buildSpendingTx(
	fundOutpoint *wire.OutPoint, locktime int64, outputs []*wire.TxOut,
) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)
	tx.LockTime = uint32(locktime)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *fundOutpoint,
		Sequence:         wire.MaxTxInSequenceNum - 1,
	})

	for _, out := range outputs {
		if out.Value < domain.DustLimit {
			continue
		}
		tx.AddTxOut(out)
	}
	if len(tx.TxOut) <= 0 {
		return nil, fmt.Errorf("all outputs are below dust")
	}

	txsort.InPlaceSort(tx)
	return tx, nil
}
