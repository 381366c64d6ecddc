package txbuilder

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
)

// CetFallbackDelay is the number of blocks after which the other party can
// take a CET payout its publisher did not claim with the attestation.
const CetFallbackDelay = 144

type cetOutputScript struct {
	witnessScript []byte
	pkScript      []byte
}

// newCetOutputScript locks a CET payout to the publisher key tweaked by the
// outcome point, or to the other party key once CetFallbackDelay elapsed.
//
//	OP_IF
//	  <publisher + outcome point>
//	OP_ELSE
//	  <delay> OP_CHECKSEQUENCEVERIFY OP_DROP
//	  <other>
//	OP_ENDIF
//	OP_CHECKSIG
func newCetOutputScript(
	publisher, other *btcec.PublicKey, outcomePoint *btcec.JacobianPoint,
) (*cetOutputScript, error) {
	claimKey, err := addPoint(publisher, outcomePoint)
	if err != nil {
		return nil, err
	}

	witnessScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_IF).
		AddData(claimKey.SerializeCompressed()).
		AddOp(txscript.OP_ELSE).
		AddInt64(CetFallbackDelay).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_DROP).
		AddData(other.SerializeCompressed()).
		AddOp(txscript.OP_ENDIF).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, err
	}

	scriptHash := sha256.Sum256(witnessScript)
	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(scriptHash[:]).
		Script()
	if err != nil {
		return nil, err
	}
	return &cetOutputScript{witnessScript, pkScript}, nil
}

// ClaimCetOutput spends the publisher payout of a published CET to the
// claim address. The spending key is the publisher sweep key plus the
// scalar revealed by the oracle signatures of the CET outcome, so a claim
// can only be made for the attested outcome.
func (b *txBuilder) ClaimCetOutput(claim ports.CetClaim) (string, error) {
	cet, err := deserializeTx(claim.CetHex)
	if err != nil {
		return "", err
	}
	sweepKey, err := parsePrivKey(claim.SweepPrivateKey)
	if err != nil {
		return "", err
	}
	fallbackKey, err := parsePubKey(claim.FallbackPublicKey)
	if err != nil {
		return "", fmt.Errorf("invalid fallback key: %w", err)
	}
	destination, err := b.addressScript(claim.Address)
	if err != nil {
		return "", fmt.Errorf("invalid claim address: %w", err)
	}

	point, err := newOutcomePoints(claim.OracleInfo).outcomePoint(claim.Outcome)
	if err != nil {
		return "", err
	}
	script, err := newCetOutputScript(sweepKey.PubKey(), fallbackKey, point)
	if err != nil {
		return "", err
	}

	vout := -1
	for i, out := range cet.TxOut {
		if string(out.PkScript) == string(script.pkScript) {
			vout = i
			break
		}
	}
	if vout < 0 {
		return "", fmt.Errorf("cet has no output locked to outcome")
	}
	prevOut := cet.TxOut[vout]

	fee := int64(domain.CetClaimFee(claim.FeeRate))
	if prevOut.Value-fee < domain.DustLimit {
		return "", fmt.Errorf("cet output %d too small to cover claim fee %d", prevOut.Value, fee)
	}

	secret, err := outcomeScalar(claim.OracleInfo, claim.Outcome, claim.OracleSignatures)
	if err != nil {
		return "", err
	}
	tweaked := new(btcec.ModNScalar).Set(&sweepKey.Key).Add(secret)
	tweakedBytes := tweaked.Bytes()
	claimKey, _ := btcec.PrivKeyFromBytes(tweakedBytes[:])

	cetHash := cet.TxHash()
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&cetHash, uint32(vout)), nil, nil))
	tx.AddTxOut(wire.NewTxOut(prevOut.Value-fee, destination))

	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sig, err := txscript.RawTxInWitnessSignature(
		tx, sigHashes, 0, prevOut.Value, script.witnessScript,
		txscript.SigHashAll, claimKey,
	)
	if err != nil {
		return "", err
	}
	tx.TxIn[0].Witness = wire.TxWitness{sig, {0x01}, script.witnessScript}

	vm, err := txscript.NewEngine(
		prevOut.PkScript, tx, 0, txscript.StandardVerifyFlags, nil,
		sigHashes, prevOut.Value, fetcher,
	)
	if err != nil {
		return "", err
	}
	if err := vm.Execute(); err != nil {
		return "", fmt.Errorf("attestation does not unlock cet output: %w", err)
	}
	return serializeTx(tx)
}

// addPoint returns key + point.
func addPoint(key *btcec.PublicKey, point *btcec.JacobianPoint) (*btcec.PublicKey, error) {
	var k, sum btcec.JacobianPoint
	key.AsJacobian(&k)
	btcec.AddNonConst(&k, point, &sum)
	sum.ToAffine()
	if sum.X.IsZero() && sum.Y.IsZero() {
		return nil, fmt.Errorf("tweaked key is the point at infinity")
	}
	return btcec.NewPublicKey(&sum.X, &sum.Y), nil
}
