package domain

import (
	"fmt"
	"slices"
	"strings"
)

type ContractState int

const (
	StateInitial ContractState = iota
	StateOffered
	StateAccepted
	StateSigned
	StateBroadcast
	StateConfirmed
	StateMature
	StateClosed
	StateRejected
	StateFailed
	StateRefunded
)

var stateNames = map[ContractState]string{
	StateInitial:   "Initial",
	StateOffered:   "Offered",
	StateAccepted:  "Accepted",
	StateSigned:    "Signed",
	StateBroadcast: "Broadcast",
	StateConfirmed: "Confirmed",
	StateMature:    "Mature",
	StateClosed:    "Closed",
	StateRejected:  "Rejected",
	StateFailed:    "Failed",
	StateRefunded:  "Refunded",
}

// transitions is the directed graph of allowed state changes.
var transitions = map[ContractState][]ContractState{
	StateInitial:   {StateInitial, StateOffered, StateFailed},
	StateOffered:   {StateAccepted, StateSigned, StateRejected, StateFailed},
	StateAccepted:  {StateOffered, StateBroadcast, StateRejected},
	StateSigned:    {StateConfirmed},
	StateBroadcast: {StateConfirmed},
	StateConfirmed: {StateMature, StateRefunded},
	StateMature:    {StateClosed},
}

func (s ContractState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

func (s ContractState) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("unknown contract state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ContractState) UnmarshalText(text []byte) error {
	state, err := ParseContractState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

func (s ContractState) IsTerminal() bool {
	return len(transitions[s]) <= 0
}

func (s ContractState) CanTransitionTo(next ContractState) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

func ParseContractState(name string) (ContractState, error) {
	for state, n := range stateNames {
		if strings.EqualFold(n, name) {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown contract state %s", name)
}

// Contract is one of the stage variants below. Every variant embeds the
// previous stage by value, so fields of earlier stages are always reachable.
type Contract interface {
	GetId() string
	GetState() ContractState
	GetCounterPartyName() string
	Initial() InitialContract
	isContract()
}

type Outcome struct {
	// Message is set for enumerated events.
	Message      string `json:"message,omitempty"`
	// Digits is the prefix covering a numeric range.
	Digits       []int  `json:"digits,omitempty"`
	LocalPayout  uint64 `json:"localPayout"`
	RemotePayout uint64 `json:"remotePayout"`
}

// Distributes tells whether the outcome pays out exactly total.
func (o Outcome) Distributes(total uint64) bool {
	return o.LocalPayout <= total && o.RemotePayout == total-o.LocalPayout
}

type OracleInfo struct {
	Name         string   `json:"name"`
	PublicKey    string   `json:"publicKey"`
	RValues      []string `json:"rValues"`
	AssetId      string   `json:"assetId"`
	MaturityTime int64    `json:"maturityTime"`
	Base         int      `json:"base,omitempty"`
	NbDigits     int      `json:"nbDigits,omitempty"`
}

func (o OracleInfo) IsDigitDecomposed() bool {
	return o.NbDigits > 0
}

// SameEvent tells whether both refer to the same announced event, key and
// nonces included.
func (o OracleInfo) SameEvent(other OracleInfo) bool {
	return o.PublicKey == other.PublicKey &&
		o.AssetId == other.AssetId &&
		o.MaturityTime == other.MaturityTime &&
		o.Base == other.Base &&
		o.NbDigits == other.NbDigits &&
		slices.Equal(o.RValues, other.RValues)
}

type Utxo struct {
	Txid    string `json:"txid"`
	Vout    uint32 `json:"vout"`
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
}

type PartyInputs struct {
	FundPublicKey  string `json:"fundPublicKey"`
	SweepPublicKey string `json:"sweepPublicKey"`
	ChangeAddress  string `json:"changeAddress"`
	FinalAddress   string `json:"finalAddress"`
	Utxos          []Utxo `json:"utxos"`
}

func (p PartyInputs) UtxosAmount() uint64 {
	var total uint64
	for _, u := range p.Utxos {
		total += u.Amount
	}
	return total
}

// PrivateParams hold the keys this node generated for a contract. They are
// persisted locally and never copied into protocol messages.
type PrivateParams struct {
	FundPrivateKey   string   `json:"fundPrivateKey"`
	SweepPrivateKey  string   `json:"sweepPrivateKey"`
	InputPrivateKeys []string `json:"inputPrivateKeys"`
}

type FundingSignature struct {
	Txid    string   `json:"txid"`
	Vout    uint32   `json:"vout"`
	Witness []string `json:"witness"`
}

type InitialContract struct {
	Id               string        `json:"id"`
	State            ContractState `json:"state"`
	IsLocalParty     bool          `json:"isLocalParty"`
	CounterPartyName string        `json:"counterPartyName"`
	LocalCollateral  uint64        `json:"localCollateral"`
	RemoteCollateral uint64        `json:"remoteCollateral"`
	FeeRate          uint64        `json:"feeRate"`
	MaturityTime     int64         `json:"maturityTime"`
	RefundLocktime   int64         `json:"refundLocktime"`
	Outcomes         []Outcome     `json:"outcomes"`
	OracleInfo       OracleInfo    `json:"oracleInfo"`
}

func (c InitialContract) GetId() string {
	return c.Id
}

func (c InitialContract) GetState() ContractState {
	return c.State
}

func (c InitialContract) GetCounterPartyName() string {
	return c.CounterPartyName
}

func (c InitialContract) Initial() InitialContract {
	return c
}

func (c InitialContract) TotalCollateral() uint64 {
	return c.LocalCollateral + c.RemoteCollateral
}

func (InitialContract) isContract() {}

type OfferedContract struct {
	InitialContract
	LocalPartyInputs PartyInputs    `json:"localPartyInputs"`
	PrivateParams    *PrivateParams `json:"privateParams,omitempty"`
}

type AcceptedContract struct {
	OfferedContract
	RemotePartyInputs     PartyInputs `json:"remotePartyInputs"`
	FundTxHex             string      `json:"fundTxHex"`
	FundTxId              string      `json:"fundTxId"`
	FundOutputIndex       uint32      `json:"fundOutputIndex"`
	FundOutputValue       uint64      `json:"fundOutputValue"`
	FundAddress           string      `json:"fundAddress"`
	RefundTxHex           string      `json:"refundTxHex"`
	LocalCetsHex          []string    `json:"localCetsHex"`
	RemoteCetsHex         []string    `json:"remoteCetsHex"`
	// RemoteCetSignatures are the accepter signatures of LocalCetsHex.
	RemoteCetSignatures   []string    `json:"remoteCetSignatures"`
	RefundRemoteSignature string      `json:"refundRemoteSignature"`
}

// OwnInputs returns the inputs contributed by this node.
func (c AcceptedContract) OwnInputs() PartyInputs {
	if c.IsLocalParty {
		return c.LocalPartyInputs
	}
	return c.RemotePartyInputs
}

// CounterPartyInputs returns the inputs contributed by the other node.
func (c AcceptedContract) CounterPartyInputs() PartyInputs {
	if c.IsLocalParty {
		return c.RemotePartyInputs
	}
	return c.LocalPartyInputs
}

// OwnCetsHex returns the CETs this node can publish.
func (c AcceptedContract) OwnCetsHex() []string {
	if c.IsLocalParty {
		return c.LocalCetsHex
	}
	return c.RemoteCetsHex
}

// CounterPartyCetsHex returns the CETs the other node can publish.
func (c AcceptedContract) CounterPartyCetsHex() []string {
	if c.IsLocalParty {
		return c.RemoteCetsHex
	}
	return c.LocalCetsHex
}

// OwnPayout is what outcome pays this node.
func (c AcceptedContract) OwnPayout(outcome Outcome) uint64 {
	if c.IsLocalParty {
		return outcome.LocalPayout
	}
	return outcome.RemotePayout
}

type SignedContract struct {
	AcceptedContract
	// LocalCetSignatures are the offerer signatures of RemoteCetsHex.
	LocalCetSignatures   []string           `json:"localCetSignatures"`
	RefundLocalSignature string             `json:"refundLocalSignature"`
	FundTxSignatures     []FundingSignature `json:"fundTxSignatures"`
	UtxoPublicKeys       []string           `json:"utxoPublicKeys"`
}

// CounterPartyCetSignatures returns the other node signatures of the CETs
// this node can publish.
func (c SignedContract) CounterPartyCetSignatures() []string {
	if c.IsLocalParty {
		return c.RemoteCetSignatures
	}
	return c.LocalCetSignatures
}

type BroadcastContract struct {
	SignedContract
	SignedFundTxHex string `json:"signedFundTxHex"`
}

type ConfirmedContract struct {
	SignedContract
}

type MatureContract struct {
	ConfirmedContract
	OutcomeValues     []string `json:"outcomeValues"`
	OracleSignatures  []string `json:"oracleSignatures"`
	FinalOutcome      Outcome  `json:"finalOutcome"`
	FinalCetIndex     int      `json:"finalCetIndex"`
	// FinalCetId is the attested CET of this node, CounterPartyCetId the
	// one of the other node.
	FinalCetId        string   `json:"finalCetId"`
	CounterPartyCetId string   `json:"counterPartyCetId"`
}

type ClosedContract struct {
	MatureContract
	ClosingTxId   string `json:"closingTxId"`
	ClosedByOther bool   `json:"closedByOther"`
	// ClaimTxId spends the payout locked to the oracle attestation, when
	// this node published the CET.
	ClaimTxId     string `json:"claimTxId,omitempty"`
	// Payouts actually received, after dust outputs were discarded.
	LocalPayout   uint64 `json:"localPayout"`
	RemotePayout  uint64 `json:"remotePayout"`
}

type RefundedContract struct {
	ConfirmedContract
	RefundTxId      string `json:"refundTxId"`
	RefundedByOther bool   `json:"refundedByOther"`
}

type RejectedContract struct {
	OfferedContract
	Reason string `json:"reason"`
}

type FailedContract struct {
	OfferedContract
	Reason string `json:"reason"`
}

// SignedPart returns the signed stage embedded in c, if any.
func SignedPart(c Contract) (SignedContract, bool) {
	switch v := c.(type) {
	case SignedContract:
		return v, true
	case BroadcastContract:
		return v.SignedContract, true
	case ConfirmedContract:
		return v.SignedContract, true
	case MatureContract:
		return v.SignedContract, true
	case ClosedContract:
		return v.SignedContract, true
	case RefundedContract:
		return v.SignedContract, true
	default:
		return SignedContract{}, false
	}
}

// AcceptedPart returns the accepted stage embedded in c, if any.
func AcceptedPart(c Contract) (AcceptedContract, bool) {
	if accepted, ok := c.(AcceptedContract); ok {
		return accepted, true
	}
	if signed, ok := SignedPart(c); ok {
		return signed.AcceptedContract, true
	}
	return AcceptedContract{}, false
}

// OfferedPart returns the offered stage embedded in c, if any.
func OfferedPart(c Contract) (OfferedContract, bool) {
	switch v := c.(type) {
	case OfferedContract:
		return v, true
	case AcceptedContract:
		return v.OfferedContract, true
	case RejectedContract:
		return v.OfferedContract, true
	case FailedContract:
		return v.OfferedContract, true
	}
	if signed, ok := SignedPart(c); ok {
		return signed.OfferedContract, true
	}
	return OfferedContract{}, false
}
