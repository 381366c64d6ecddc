package txbuilder

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
)

func (b *txBuilder) SignCets(
	cetsHex []string, fund ports.FundingOutput, privkey string,
) ([]string, error) {
	script, err := b.fundingScript(fund)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivKey(privkey)
	if err != nil {
		return nil, err
	}

	sigs := make([]string, 0, len(cetsHex))
	for i, cetHex := range cetsHex {
		sig, err := b.signFundingSpend(cetHex, script, fund.Value, key)
		if err != nil {
			return nil, fmt.Errorf("failed to sign cet %d: %w", i, err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (b *txBuilder) VerifyCetSignatures(
	cetsHex []string, fund ports.FundingOutput, signatures []string, pubkey string,
) bool {
	if len(cetsHex) != len(signatures) {
		return false
	}
	script, err := b.fundingScript(fund)
	if err != nil {
		return false
	}
	for i, cetHex := range cetsHex {
		if !b.verifyFundingSpend(cetHex, script, fund.Value, signatures[i], pubkey) {
			return false
		}
	}
	return true
}

func (b *txBuilder) SignRefund(
	refundTxHex string, fund ports.FundingOutput, privkey string,
) (string, error) {
	script, err := b.fundingScript(fund)
	if err != nil {
		return "", err
	}
	key, err := parsePrivKey(privkey)
	if err != nil {
		return "", err
	}
	return b.signFundingSpend(refundTxHex, script, fund.Value, key)
}

func (b *txBuilder) VerifyRefundSignature(
	refundTxHex string, fund ports.FundingOutput, signature, pubkey string,
) bool {
	script, err := b.fundingScript(fund)
	if err != nil {
		return false
	}
	return b.verifyFundingSpend(refundTxHex, script, fund.Value, signature, pubkey)
}

func (b *txBuilder) FinalizeCet(
	cetHex string, fund ports.FundingOutput, localSignature, remoteSignature string,
) (string, error) {
	return b.finalizeFundingSpend(cetHex, fund, localSignature, remoteSignature)
}

func (b *txBuilder) FinalizeRefund(
	refundTxHex string, fund ports.FundingOutput, localSignature, remoteSignature string,
) (string, error) {
	return b.finalizeFundingSpend(refundTxHex, fund, localSignature, remoteSignature)
}

func (b *txBuilder) SignFundingInputs(
	fundTxHex string, utxos []domain.Utxo, privkeys []string,
) ([]domain.FundingSignature, error) {
	if len(utxos) != len(privkeys) {
		return nil, fmt.Errorf(
			"got %d private keys for %d utxos", len(privkeys), len(utxos),
		)
	}
	tx, err := deserializeTx(fundTxHex)
	if err != nil {
		return nil, err
	}

	sigs := make([]domain.FundingSignature, 0, len(utxos))
	for i, u := range utxos {
		index, err := findInput(tx, u)
		if err != nil {
			return nil, err
		}
		key, err := parsePrivKey(privkeys[i])
		if err != nil {
			return nil, err
		}
		pkScript, err := b.addressScript(u.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo address: %w", err)
		}

		fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, int64(u.Amount))
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)
		witness, err := txscript.WitnessSignature(
			tx, sigHashes, index, int64(u.Amount), pkScript,
			txscript.SigHashAll, key, true,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to sign input %s:%d: %w", u.Txid, u.Vout, err)
		}
		sigs = append(sigs, domain.FundingSignature{
			Txid:    u.Txid,
			Vout:    u.Vout,
			Witness: encodeWitness(witness),
		})
	}
	return sigs, nil
}

func (b *txBuilder) VerifyFundingSignatures(
	fundTxHex string, utxos []domain.Utxo, signatures []domain.FundingSignature,
) bool {
	if len(utxos) != len(signatures) {
		return false
	}
	tx, err := deserializeTx(fundTxHex)
	if err != nil {
		return false
	}
	for _, sig := range signatures {
		u, ok := findUtxo(utxos, sig)
		if !ok {
			return false
		}
		if err := b.verifyFundingInput(tx, u, sig); err != nil {
			return false
		}
	}
	return true
}

// FinalizeFundingTx attaches every input witness through a PSBT and
// extracts the network serialized transaction.
func (b *txBuilder) FinalizeFundingTx(
	fundTxHex string, utxos []domain.Utxo, signatures []domain.FundingSignature,
) (string, error) {
	tx, err := deserializeTx(fundTxHex)
	if err != nil {
		return "", err
	}
	if len(utxos) != len(tx.TxIn) || len(signatures) != len(tx.TxIn) {
		return "", fmt.Errorf(
			"got %d utxos and %d signatures for %d inputs",
			len(utxos), len(signatures), len(tx.TxIn),
		)
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", err
	}
	for _, sig := range signatures {
		u, ok := findUtxo(utxos, sig)
		if !ok {
			return "", fmt.Errorf("unknown funding input %s:%d", sig.Txid, sig.Vout)
		}
		if err := b.verifyFundingInput(tx, u, sig); err != nil {
			return "", fmt.Errorf("invalid signature for input %s:%d: %w", u.Txid, u.Vout, err)
		}

		index, err := findInput(tx, u)
		if err != nil {
			return "", err
		}
		pkScript, err := b.addressScript(u.Address)
		if err != nil {
			return "", err
		}
		witness, err := decodeWitness(sig.Witness)
		if err != nil {
			return "", err
		}
		finalWitness, err := serializeWitness(witness)
		if err != nil {
			return "", err
		}
		packet.Inputs[index].WitnessUtxo = wire.NewTxOut(int64(u.Amount), pkScript)
		packet.Inputs[index].FinalScriptWitness = finalWitness
	}

	signedTx, err := psbt.Extract(packet)
	if err != nil {
		return "", fmt.Errorf("failed to extract funding tx: %w", err)
	}
	return serializeTx(signedTx)
}

func (b *txBuilder) DecodeTransaction(txHex string) (*ports.DecodedTx, error) {
	tx, err := deserializeTx(txHex)
	if err != nil {
		return nil, err
	}
	outputs := make([]ports.TxOutput, 0, len(tx.TxOut))
	for _, out := range tx.TxOut {
		var address string
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, b.net)
		if err == nil && len(addrs) > 0 {
			address = addrs[0].EncodeAddress()
		}
		outputs = append(outputs, ports.TxOutput{
			Address: address,
			Amount:  uint64(out.Value),
		})
	}
	return &ports.DecodedTx{
		Txid:    tx.TxHash().String(),
		Outputs: outputs,
	}, nil
}

func (b *txBuilder) verifyFundingInput(
	tx *wire.MsgTx, u domain.Utxo, sig domain.FundingSignature,
) error {
	index, err := findInput(tx, u)
	if err != nil {
		return err
	}
	pkScript, err := b.addressScript(u.Address)
	if err != nil {
		return err
	}
	witness, err := decodeWitness(sig.Witness)
	if err != nil {
		return err
	}

	signedTx := tx.Copy()
	signedTx.TxIn[index].Witness = witness

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, int64(u.Amount))
	sigHashes := txscript.NewTxSigHashes(signedTx, fetcher)
	vm, err := txscript.NewEngine(
		pkScript, signedTx, index, txscript.StandardVerifyFlags, nil,
		sigHashes, int64(u.Amount), fetcher,
	)
	if err != nil {
		return err
	}
	return vm.Execute()
}

func (b *txBuilder) signFundingSpend(
	txHex string, script *fundingScript, value uint64, key *btcec.PrivateKey,
) (string, error) {
	if !isFundKey(script, key.PubKey()) {
		return "", fmt.Errorf("key is not part of the funding script")
	}
	tx, err := deserializeTx(txHex)
	if err != nil {
		return "", err
	}
	sig, err := txscript.RawTxInWitnessSignature(
		tx, fundingSigHashes(tx, script, value), 0, int64(value),
		script.witnessScript, txscript.SigHashAll, key,
	)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

func (b *txBuilder) verifyFundingSpend(
	txHex string, script *fundingScript, value uint64, signature, pubkey string,
) bool {
	key, err := parsePubKey(pubkey)
	if err != nil || !isFundKey(script, key) {
		return false
	}
	tx, err := deserializeTx(txHex)
	if err != nil || len(tx.TxIn) != 1 {
		return false
	}
	buf, err := hex.DecodeString(signature)
	if err != nil || len(buf) < 2 {
		return false
	}
	if txscript.SigHashType(buf[len(buf)-1]) != txscript.SigHashAll {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(buf[:len(buf)-1])
	if err != nil {
		return false
	}
	hash, err := txscript.CalcWitnessSigHash(
		script.witnessScript, fundingSigHashes(tx, script, value),
		txscript.SigHashAll, tx, 0, int64(value),
	)
	if err != nil {
		return false
	}
	return sig.Verify(hash, key)
}

func (b *txBuilder) finalizeFundingSpend(
	txHex string, fund ports.FundingOutput, localSignature, remoteSignature string,
) (string, error) {
	script, err := b.fundingScript(fund)
	if err != nil {
		return "", err
	}
	if !b.verifyFundingSpend(
		txHex, script, fund.Value, localSignature, fund.LocalFundPublicKey,
	) {
		return "", fmt.Errorf("invalid local signature")
	}
	if !b.verifyFundingSpend(
		txHex, script, fund.Value, remoteSignature, fund.RemoteFundPublicKey,
	) {
		return "", fmt.Errorf("invalid remote signature")
	}

	tx, err := deserializeTx(txHex)
	if err != nil {
		return "", err
	}
	localSig, _ := hex.DecodeString(localSignature)
	remoteSig, _ := hex.DecodeString(remoteSignature)
	localKey, _ := parsePubKey(fund.LocalFundPublicKey)

	// Signatures follow the pubkey order of the multisig script.
	sigs := [2][]byte{localSig, remoteSig}
	if !script.pubkeys[0].IsEqual(localKey) {
		sigs = [2][]byte{remoteSig, localSig}
	}
	tx.TxIn[0].Witness = wire.TxWitness{nil, sigs[0], sigs[1], script.witnessScript}

	return serializeTx(tx)
}

func fundingSigHashes(
	tx *wire.MsgTx, script *fundingScript, value uint64,
) *txscript.TxSigHashes {
	fetcher := txscript.NewCannedPrevOutputFetcher(script.pkScript, int64(value))
	return txscript.NewTxSigHashes(tx, fetcher)
}

func isFundKey(script *fundingScript, key *btcec.PublicKey) bool {
	return script.pubkeys[0].IsEqual(key) || script.pubkeys[1].IsEqual(key)
}

func findUtxo(utxos []domain.Utxo, sig domain.FundingSignature) (domain.Utxo, bool) {
	for _, u := range utxos {
		if u.Txid == sig.Txid && u.Vout == sig.Vout {
			return u, true
		}
	}
	return domain.Utxo{}, false
}
