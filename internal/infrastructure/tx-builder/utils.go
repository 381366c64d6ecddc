package txbuilder

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
)

type fundingScript struct {
	witnessScript []byte
	pkScript      []byte
	address       string
	// pubkeys in the order they appear in the multisig script.
	pubkeys [2]*btcec.PublicKey
}

func (b *txBuilder) fundingScript(fund ports.FundingOutput) (*fundingScript, error) {
	localKey, err := parsePubKey(fund.LocalFundPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid local fund key: %w", err)
	}
	remoteKey, err := parsePubKey(fund.RemoteFundPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid remote fund key: %w", err)
	}
	if localKey.IsEqual(remoteKey) {
		return nil, fmt.Errorf("fund keys must be distinct")
	}

	pubkeys := [2]*btcec.PublicKey{localKey, remoteKey}
	if bytes.Compare(
		localKey.SerializeCompressed(), remoteKey.SerializeCompressed(),
	) > 0 {
		pubkeys = [2]*btcec.PublicKey{remoteKey, localKey}
	}

	witnessScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_2).
		AddData(pubkeys[0].SerializeCompressed()).
		AddData(pubkeys[1].SerializeCompressed()).
		AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	if err != nil {
		return nil, err
	}

	scriptHash := sha256.Sum256(witnessScript)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], b.net)
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	return &fundingScript{
		witnessScript: witnessScript,
		pkScript:      pkScript,
		address:       addr.EncodeAddress(),
		pubkeys:       pubkeys,
	}, nil
}

func (b *txBuilder) addressScript(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, b.net)
	if err != nil {
		return nil, err
	}
	if !addr.IsForNet(b.net) {
		return nil, fmt.Errorf("address %s is not for network %s", address, b.net.Name)
	}
	return txscript.PayToAddrScript(addr)
}

func toOutpoint(u domain.Utxo) (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.Txid)
	if err != nil {
		return nil, fmt.Errorf("invalid utxo txid %s: %w", u.Txid, err)
	}
	return wire.NewOutPoint(hash, u.Vout), nil
}

func findInput(tx *wire.MsgTx, u domain.Utxo) (int, error) {
	outpoint, err := toOutpoint(u)
	if err != nil {
		return -1, err
	}
	for i, in := range tx.TxIn {
		if in.PreviousOutPoint == *outpoint {
			return i, nil
		}
	}
	return -1, fmt.Errorf("input %s not found in tx", outpoint)
}

func parsePubKey(pubkey string) (*btcec.PublicKey, error) {
	buf, err := hex.DecodeString(pubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	return btcec.ParsePubKey(buf)
}

func parsePrivKey(privkey string) (*btcec.PrivateKey, error) {
	buf, err := hex.DecodeString(privkey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(buf) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid private key length %d", len(buf))
	}
	key, _ := btcec.PrivKeyFromBytes(buf)
	return key, nil
}

func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func deserializeTx(txHex string) (*wire.MsgTx, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hex: %w", err)
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("failed to deserialize tx: %w", err)
	}
	return tx, nil
}

func serializeWitness(witness wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(witness))); err != nil {
		return nil, err
	}
	for _, item := range witness {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeWitness(items []string) (wire.TxWitness, error) {
	witness := make(wire.TxWitness, 0, len(items))
	for _, item := range items {
		buf, err := hex.DecodeString(item)
		if err != nil {
			return nil, fmt.Errorf("invalid witness item: %w", err)
		}
		witness = append(witness, buf)
	}
	return witness, nil
}

func encodeWitness(witness wire.TxWitness) []string {
	items := make([]string, 0, len(witness))
	for _, item := range witness {
		items = append(items, hex.EncodeToString(item))
	}
	return items
}
