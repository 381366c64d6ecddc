package localoracle

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/dlc-network/dlcd/internal/core/domain"
	txbuilder "github.com/dlc-network/dlcd/internal/infrastructure/tx-builder"
	"github.com/dlc-network/dlcd/pkg/digittrie"
)

var nonceTag = []byte("DLC/oracle/nonce")

type eventKey struct {
	assetId      string
	maturityTime int64
}

type numericAsset struct {
	base     int
	nbDigits int
}

// Oracle announces and attests events with nonces derived from its key, so
// announcements are stable across restarts.
type Oracle struct {
	name string
	key  *btcec.PrivateKey

	lock         *sync.RWMutex
	numeric      map[string]numericAsset
	attestations map[eventKey]domain.OracleAttestation
}

func NewOracle(name string, key *btcec.PrivateKey) *Oracle {
	return &Oracle{
		name:         name,
		key:          key,
		lock:         &sync.RWMutex{},
		numeric:      make(map[string]numericAsset),
		attestations: make(map[eventKey]domain.OracleAttestation),
	}
}

// RegisterNumericAsset makes events of assetId digit decomposed. Other
// assets are enumerated events with a single nonce.
func (o *Oracle) RegisterNumericAsset(assetId string, base, nbDigits int) error {
	if _, err := digittrie.Digits(0, base, nbDigits); err != nil {
		return err
	}
	o.lock.Lock()
	defer o.lock.Unlock()
	o.numeric[assetId] = numericAsset{base, nbDigits}
	return nil
}

func (o *Oracle) PublicKey() string {
	return hex.EncodeToString(schnorr.SerializePubKey(o.key.PubKey()))
}

func (o *Oracle) Announce(assetId string, maturityTime int64) (*domain.OracleAnnouncement, error) {
	o.lock.RLock()
	asset, isNumeric := o.numeric[assetId]
	o.lock.RUnlock()

	count := 1
	if isNumeric {
		count = asset.nbDigits
	}
	rValues := make([]string, 0, count)
	for i := 0; i < count; i++ {
		nonce, err := o.nonce(assetId, maturityTime, i)
		if err != nil {
			return nil, err
		}
		var r secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(nonce, &r)
		r.ToAffine()
		rValues = append(rValues, hex.EncodeToString(r.X.Bytes()[:]))
	}

	return &domain.OracleAnnouncement{
		Name:         o.name,
		PublicKey:    o.PublicKey(),
		RValues:      rValues,
		AssetId:      assetId,
		MaturityTime: maturityTime,
		Base:         asset.base,
		NbDigits:     asset.nbDigits,
	}, nil
}

// Attest signs an enumerated outcome.
func (o *Oracle) Attest(
	assetId string, maturityTime int64, outcome string,
) (*domain.OracleAttestation, error) {
	o.lock.RLock()
	_, isNumeric := o.numeric[assetId]
	o.lock.RUnlock()
	if isNumeric {
		return nil, fmt.Errorf("asset %s is numeric, attest a value instead", assetId)
	}
	return o.attest(assetId, maturityTime, []string{outcome})
}

// AttestValue signs every digit of a numeric outcome.
func (o *Oracle) AttestValue(
	assetId string, maturityTime int64, value uint64,
) (*domain.OracleAttestation, error) {
	o.lock.RLock()
	asset, isNumeric := o.numeric[assetId]
	o.lock.RUnlock()
	if !isNumeric {
		return nil, fmt.Errorf("asset %s is not numeric", assetId)
	}

	digits, err := digittrie.Digits(value, asset.base, asset.nbDigits)
	if err != nil {
		return nil, err
	}
	outcomes := make([]string, 0, len(digits))
	for _, d := range digits {
		outcomes = append(outcomes, strconv.Itoa(d))
	}
	return o.attest(assetId, maturityTime, outcomes)
}

func (o *Oracle) Attestation(
	assetId string, maturityTime int64,
) (*domain.OracleAttestation, bool) {
	o.lock.RLock()
	defer o.lock.RUnlock()
	att, ok := o.attestations[eventKey{assetId, maturityTime}]
	if !ok {
		return nil, false
	}
	return &att, true
}

func (o *Oracle) attest(
	assetId string, maturityTime int64, outcomes []string,
) (*domain.OracleAttestation, error) {
	sigs := make([]string, 0, len(outcomes))
	for i, outcome := range outcomes {
		nonce, err := o.nonce(assetId, maturityTime, i)
		if err != nil {
			return nil, err
		}
		sig := signWithNonce(o.key, nonce, txbuilder.OutcomeMessage(outcome))
		sigs = append(sigs, hex.EncodeToString(sig))
	}

	att := domain.OracleAttestation{
		AssetId:      assetId,
		MaturityTime: maturityTime,
		Outcomes:     outcomes,
		Signatures:   sigs,
	}

	o.lock.Lock()
	defer o.lock.Unlock()
	key := eventKey{assetId, maturityTime}
	if existing, ok := o.attestations[key]; ok {
		return &existing, fmt.Errorf("event %s at %d already attested", assetId, maturityTime)
	}
	o.attestations[key] = att
	return &att, nil
}

func (o *Oracle) nonce(
	assetId string, maturityTime int64, index int,
) (*secp256k1.ModNScalar, error) {
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(maturityTime))
	binary.BigEndian.PutUint32(buf[8:], uint32(index))
	keyBytes := o.key.Key.Bytes()

	hash := chainhash.TaggedHash(nonceTag, keyBytes[:], []byte(assetId), buf[:])
	var k secp256k1.ModNScalar
	k.SetByteSlice(hash[:])
	if k.IsZero() {
		return nil, fmt.Errorf("invalid nonce for event %s", assetId)
	}
	return &k, nil
}

// signWithNonce produces a BIP340 signature using the given nonce, so that
// the signature R value matches the announced one.
func signWithNonce(key *btcec.PrivateKey, nonce *secp256k1.ModNScalar, msg []byte) []byte {
	d := key.Key
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&d, &p)
	p.ToAffine()
	if p.Y.IsOdd() {
		d.Negate()
	}

	k := *nonce
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &r)
	r.ToAffine()
	if r.Y.IsOdd() {
		k.Negate()
	}

	rBytes := r.X.Bytes()
	pBytes := p.X.Bytes()
	commitment := chainhash.TaggedHash(
		chainhash.TagBIP0340Challenge, rBytes[:], pBytes[:], msg,
	)

	var e secp256k1.ModNScalar
	e.SetByteSlice(commitment[:])
	s := new(secp256k1.ModNScalar).Mul2(&e, &d).Add(&k)
	sBytes := s.Bytes()

	sig := make([]byte, 0, schnorr.SignatureSize)
	sig = append(sig, rBytes[:]...)
	return append(sig, sBytes[:]...)
}
