package domain

import (
	"encoding/json"
	"fmt"
)

// MessageSchemaVersion is the version of the protocol message encoding.
// Accept and sign messages carry one CET signature per contract outcome, in
// outcome order, over the CETs the receiving node can publish.
const MessageSchemaVersion = 2

type MessageType string

const (
	MessageTypeOffer  MessageType = "offer"
	MessageTypeAccept MessageType = "accept"
	MessageTypeSign   MessageType = "sign"
	MessageTypeReject MessageType = "reject"
)

type Message interface {
	Type() MessageType
	GetContractId() string
}

type OfferMessage struct {
	ContractId       string      `json:"contractId"`
	LocalCollateral  uint64      `json:"localCollateral"`
	RemoteCollateral uint64      `json:"remoteCollateral"`
	FeeRate          uint64      `json:"feeRate"`
	MaturityTime     int64       `json:"maturityTime"`
	RefundLocktime   int64       `json:"refundLocktime"`
	Outcomes         []Outcome   `json:"outcomes"`
	OracleInfo       OracleInfo  `json:"oracleInfo"`
	LocalPartyInputs PartyInputs `json:"localPartyInputs"`
}

type AcceptMessage struct {
	ContractId        string      `json:"contractId"`
	RemotePartyInputs PartyInputs `json:"remotePartyInputs"`
	CetSignatures     []string    `json:"cetSignatures"`
	RefundSignature   string      `json:"refundSignature"`
}

type SignMessage struct {
	ContractId        string             `json:"contractId"`
	FundingSignatures []FundingSignature `json:"fundingSignatures"`
	CetSignatures     []string           `json:"cetSignatures"`
	RefundSignature   string             `json:"refundSignature"`
	UtxoPublicKeys    []string           `json:"utxoPublicKeys"`
}

type RejectMessage struct {
	ContractId string `json:"contractId"`
	Reason     string `json:"reason,omitempty"`
}

func (m OfferMessage) Type() MessageType      { return MessageTypeOffer }
func (m OfferMessage) GetContractId() string  { return m.ContractId }
func (m AcceptMessage) Type() MessageType     { return MessageTypeAccept }
func (m AcceptMessage) GetContractId() string { return m.ContractId }
func (m SignMessage) Type() MessageType       { return MessageTypeSign }
func (m SignMessage) GetContractId() string   { return m.ContractId }
func (m RejectMessage) Type() MessageType     { return MessageTypeReject }
func (m RejectMessage) GetContractId() string { return m.ContractId }

func NewOfferMessage(c OfferedContract) OfferMessage {
	return OfferMessage{
		ContractId:       c.Id,
		LocalCollateral:  c.LocalCollateral,
		RemoteCollateral: c.RemoteCollateral,
		FeeRate:          c.FeeRate,
		MaturityTime:     c.MaturityTime,
		RefundLocktime:   c.RefundLocktime,
		Outcomes:         c.Outcomes,
		OracleInfo:       c.OracleInfo,
		LocalPartyInputs: c.LocalPartyInputs,
	}
}

func NewAcceptMessage(c AcceptedContract) AcceptMessage {
	return AcceptMessage{
		ContractId:        c.Id,
		RemotePartyInputs: c.RemotePartyInputs,
		CetSignatures:     c.RemoteCetSignatures,
		RefundSignature:   c.RefundRemoteSignature,
	}
}

func NewSignMessage(c SignedContract) SignMessage {
	return SignMessage{
		ContractId:        c.Id,
		FundingSignatures: c.FundTxSignatures,
		CetSignatures:     c.LocalCetSignatures,
		RefundSignature:   c.RefundLocalSignature,
		UtxoPublicKeys:    c.UtxoPublicKeys,
	}
}

type messageEnvelope struct {
	Version int             `json:"version"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeMessage serializes a protocol message with its schema version.
func EncodeMessage(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Type(), err)
	}
	return json.Marshal(messageEnvelope{
		Version: MessageSchemaVersion,
		Type:    msg.Type(),
		Payload: payload,
	})
}

func DecodeMessage(buf []byte) (Message, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if envelope.Version != MessageSchemaVersion {
		return nil, fmt.Errorf(
			"unsupported message version %d, expected %d",
			envelope.Version, MessageSchemaVersion,
		)
	}

	var msg Message
	var err error
	switch envelope.Type {
	case MessageTypeOffer:
		var m OfferMessage
		err = json.Unmarshal(envelope.Payload, &m)
		msg = m
	case MessageTypeAccept:
		var m AcceptMessage
		err = json.Unmarshal(envelope.Payload, &m)
		msg = m
	case MessageTypeSign:
		var m SignMessage
		err = json.Unmarshal(envelope.Payload, &m)
		msg = m
	case MessageTypeReject:
		var m RejectMessage
		err = json.Unmarshal(envelope.Payload, &m)
		msg = m
	default:
		return nil, fmt.Errorf("unknown message type %s", envelope.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s message: %w", envelope.Type, err)
	}
	if len(msg.GetContractId()) <= 0 {
		return nil, fmt.Errorf("%s message is missing contract id", envelope.Type)
	}
	return msg, nil
}
