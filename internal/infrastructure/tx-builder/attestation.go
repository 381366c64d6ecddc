package txbuilder

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dlc-network/dlcd/internal/core/domain"
)

// OutcomeMessage is the message an oracle signs to attest outcome.
func OutcomeMessage(outcome string) []byte {
	return chainhash.HashB([]byte(outcome))
}

// VerifyAttestation checks that every attested outcome is signed by the
// oracle key with the nonce committed in the announcement.
func (b *txBuilder) VerifyAttestation(
	oracle domain.OracleInfo, attestation domain.OracleAttestation,
) error {
	if attestation.AssetId != oracle.AssetId {
		return fmt.Errorf(
			"attestation asset %s does not match %s", attestation.AssetId, oracle.AssetId,
		)
	}
	if attestation.MaturityTime != oracle.MaturityTime {
		return fmt.Errorf("attestation maturity does not match announcement")
	}
	if len(attestation.Outcomes) != len(oracle.RValues) ||
		len(attestation.Signatures) != len(oracle.RValues) {
		return fmt.Errorf(
			"expected %d attested outcomes, got %d with %d signatures",
			len(oracle.RValues), len(attestation.Outcomes), len(attestation.Signatures),
		)
	}

	pubkeyBytes, err := hex.DecodeString(oracle.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid oracle pubkey: %w", err)
	}
	pubkey, err := schnorr.ParsePubKey(pubkeyBytes)
	if err != nil {
		return fmt.Errorf("invalid oracle pubkey: %w", err)
	}

	for i, outcome := range attestation.Outcomes {
		if oracle.IsDigitDecomposed() {
			digit, err := strconv.Atoi(outcome)
			if err != nil || digit < 0 || digit >= oracle.Base {
				return fmt.Errorf("invalid attested digit %s", outcome)
			}
		}

		sigBytes, err := hex.DecodeString(attestation.Signatures[i])
		if err != nil {
			return fmt.Errorf("invalid attestation signature %d: %w", i, err)
		}
		nonce, err := hex.DecodeString(oracle.RValues[i])
		if err != nil {
			return fmt.Errorf("invalid announced nonce %d: %w", i, err)
		}
		if len(sigBytes) != schnorr.SignatureSize ||
			!bytes.Equal(sigBytes[:32], nonce) {
			return fmt.Errorf("attestation %d does not use the announced nonce", i)
		}

		sig, err := schnorr.ParseSignature(sigBytes)
		if err != nil {
			return fmt.Errorf("invalid attestation signature %d: %w", i, err)
		}
		if !sig.Verify(OutcomeMessage(outcome), pubkey) {
			return fmt.Errorf("invalid attestation signature for outcome %s", outcome)
		}
	}
	return nil
}

// outcomePoints computes the points whose discrete logs an oracle reveals
// by attesting outcomes, caching the per-nonce ones shared by digit prefixes.
type outcomePoints struct {
	oracle domain.OracleInfo
	cache  map[string]*btcec.JacobianPoint
}

func newOutcomePoints(oracle domain.OracleInfo) *outcomePoints {
	return &outcomePoints{oracle, make(map[string]*btcec.JacobianPoint)}
}

// outcomePoint is the sum of R_i + H(R_i, P, m_i)*P over the messages the
// oracle signs when attesting outcome.
func (p *outcomePoints) outcomePoint(outcome domain.Outcome) (*btcec.JacobianPoint, error) {
	messages, err := outcomeMessages(p.oracle, outcome)
	if err != nil {
		return nil, err
	}
	pubkey, err := hex.DecodeString(p.oracle.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle pubkey: %w", err)
	}
	oracleKey, err := schnorr.ParsePubKey(pubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle pubkey: %w", err)
	}

	var sum btcec.JacobianPoint
	for i, msg := range messages {
		key := fmt.Sprintf("%d/%s", i, msg)
		point, ok := p.cache[key]
		if !ok {
			point, err = signaturePoint(oracleKey, p.oracle.RValues[i], msg)
			if err != nil {
				return nil, err
			}
			p.cache[key] = point
		}
		var next btcec.JacobianPoint
		btcec.AddNonConst(&sum, point, &next)
		sum = next
	}
	return &sum, nil
}

// signaturePoint is s*G of the BIP340 signature of msg with nonce.
func signaturePoint(
	oracleKey *btcec.PublicKey, nonce, msg string,
) (*btcec.JacobianPoint, error) {
	nonceBytes, err := hex.DecodeString(nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle nonce: %w", err)
	}
	r, err := schnorr.ParsePubKey(nonceBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle nonce: %w", err)
	}

	commitment := chainhash.TaggedHash(
		chainhash.TagBIP0340Challenge, nonceBytes,
		schnorr.SerializePubKey(oracleKey), OutcomeMessage(msg),
	)
	var e btcec.ModNScalar
	e.SetByteSlice(commitment[:])

	var rJ, pJ, eP, point btcec.JacobianPoint
	r.AsJacobian(&rJ)
	oracleKey.AsJacobian(&pJ)
	btcec.ScalarMultNonConst(&e, &pJ, &eP)
	btcec.AddNonConst(&rJ, &eP, &point)
	return &point, nil
}

// outcomeScalar sums the s values of the oracle signatures of outcome.
func outcomeScalar(
	oracle domain.OracleInfo, outcome domain.Outcome, signatures []string,
) (*btcec.ModNScalar, error) {
	messages, err := outcomeMessages(oracle, outcome)
	if err != nil {
		return nil, err
	}
	if len(signatures) < len(messages) {
		return nil, fmt.Errorf(
			"expected %d oracle signatures, got %d", len(messages), len(signatures),
		)
	}

	sum := new(btcec.ModNScalar)
	for i := range messages {
		sig, err := hex.DecodeString(signatures[i])
		if err != nil || len(sig) != schnorr.SignatureSize {
			return nil, fmt.Errorf("invalid oracle signature %d", i)
		}
		var s btcec.ModNScalar
		if overflow := s.SetByteSlice(sig[32:]); overflow {
			return nil, fmt.Errorf("invalid oracle signature %d", i)
		}
		sum.Add(&s)
	}
	return sum, nil
}

// outcomeMessages are the outcomes the oracle signs for outcome: the
// message of an enumerated event, or one digit per nonce of a prefix.
func outcomeMessages(oracle domain.OracleInfo, outcome domain.Outcome) ([]string, error) {
	if !oracle.IsDigitDecomposed() {
		if len(oracle.RValues) != 1 {
			return nil, fmt.Errorf("expected 1 oracle nonce, got %d", len(oracle.RValues))
		}
		return []string{outcome.Message}, nil
	}

	if len(outcome.Digits) <= 0 || len(outcome.Digits) > len(oracle.RValues) {
		return nil, fmt.Errorf(
			"outcome prefix of %d digits for %d oracle nonces",
			len(outcome.Digits), len(oracle.RValues),
		)
	}
	messages := make([]string, 0, len(outcome.Digits))
	for _, d := range outcome.Digits {
		messages = append(messages, strconv.Itoa(d))
	}
	return messages, nil
}
