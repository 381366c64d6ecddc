package domain

import (
	"fmt"
	"strconv"

	"github.com/dlc-network/dlcd/pkg/digittrie"
)

// RangeOutcome pays out for every numeric outcome in [Start, End].
type RangeOutcome struct {
	Start        uint64 `json:"start"`
	End          uint64 `json:"end"`
	LocalPayout  uint64 `json:"localPayout"`
	RemotePayout uint64 `json:"remotePayout"`
}

// ContractTerms are the parameters of a new offer.
type ContractTerms struct {
	CounterPartyName string         `json:"counterPartyName"`
	LocalCollateral  uint64         `json:"localCollateral"`
	RemoteCollateral uint64         `json:"remoteCollateral"`
	FeeRate          uint64         `json:"feeRate"`
	MaturityTime     int64          `json:"maturityTime"`
	AssetId          string         `json:"assetId"`
	Outcomes         []Outcome      `json:"outcomes,omitempty"`
	Ranges           []RangeOutcome `json:"ranges,omitempty"`
}

func (t ContractTerms) Validate() error {
	if len(t.CounterPartyName) <= 0 {
		return fmt.Errorf("missing counterparty name")
	}
	if len(t.AssetId) <= 0 {
		return fmt.Errorf("missing asset id")
	}
	if t.LocalCollateral+t.RemoteCollateral <= 0 {
		return fmt.Errorf("total collateral must be greater than 0")
	}
	if t.FeeRate <= 0 {
		return fmt.Errorf("fee rate must be greater than 0")
	}
	if t.MaturityTime <= 0 {
		return fmt.Errorf("missing maturity time")
	}
	if len(t.Outcomes) > 0 && len(t.Ranges) > 0 {
		return fmt.Errorf("outcomes and ranges are mutually exclusive")
	}
	if len(t.Outcomes) <= 0 && len(t.Ranges) <= 0 {
		return fmt.Errorf("missing outcomes")
	}
	return nil
}

type OracleAnnouncement struct {
	Name         string   `json:"name"`
	PublicKey    string   `json:"publicKey"`
	RValues      []string `json:"rValues"`
	AssetId      string   `json:"assetId"`
	MaturityTime int64    `json:"maturityTime"`
	Base         int      `json:"base,omitempty"`
	NbDigits     int      `json:"nbDigits,omitempty"`
}

func (a OracleAnnouncement) Info() OracleInfo {
	return OracleInfo{
		Name:         a.Name,
		PublicKey:    a.PublicKey,
		RValues:      append([]string{}, a.RValues...),
		AssetId:      a.AssetId,
		MaturityTime: a.MaturityTime,
		Base:         a.Base,
		NbDigits:     a.NbDigits,
	}
}

type OracleAttestation struct {
	AssetId      string   `json:"assetId"`
	MaturityTime int64    `json:"maturityTime"`
	Outcomes     []string `json:"outcomes"`
	Signatures   []string `json:"signatures"`
}

// Digits parses the attested outcomes of a digit decomposed event.
func (a OracleAttestation) Digits() ([]int, error) {
	digits := make([]int, 0, len(a.Outcomes))
	for _, o := range a.Outcomes {
		d, err := strconv.Atoi(o)
		if err != nil {
			return nil, fmt.Errorf("invalid attested digit %s: %w", o, err)
		}
		digits = append(digits, d)
	}
	return digits, nil
}

// NewInitialContract validates the terms against the oracle announcement
// and resolves the payout schedule. Numeric ranges are expanded into the
// minimal set of digit prefixes covering them.
func NewInitialContract(
	id string, terms ContractTerms, announcement OracleAnnouncement,
	refundLocktime int64,
) (*InitialContract, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	if announcement.AssetId != terms.AssetId {
		return nil, fmt.Errorf(
			"announcement asset %s does not match %s",
			announcement.AssetId, terms.AssetId,
		)
	}
	if refundLocktime <= terms.MaturityTime {
		return nil, fmt.Errorf("refund locktime must be after maturity time")
	}

	var outcomes []Outcome
	var err error
	if announcement.NbDigits > 0 {
		outcomes, err = decomposeRanges(terms.Ranges, announcement)
	} else {
		outcomes, err = enumeratedOutcomes(terms.Outcomes)
	}
	if err != nil {
		return nil, err
	}

	contract := &InitialContract{
		Id:               id,
		State:            StateInitial,
		IsLocalParty:     true,
		CounterPartyName: terms.CounterPartyName,
		LocalCollateral:  terms.LocalCollateral,
		RemoteCollateral: terms.RemoteCollateral,
		FeeRate:          terms.FeeRate,
		MaturityTime:     terms.MaturityTime,
		RefundLocktime:   refundLocktime,
		Outcomes:         outcomes,
		OracleInfo:       announcement.Info(),
	}
	if err := ValidateOutcomes(*contract); err != nil {
		return nil, err
	}
	return contract, nil
}

// ValidateOutcomes checks that every payout distributes the whole collateral
// and that outcomes address disjoint events.
func ValidateOutcomes(c InitialContract) error {
	if len(c.Outcomes) <= 0 {
		return fmt.Errorf("missing outcomes")
	}
	if c.LocalCollateral > ^uint64(0)-c.RemoteCollateral {
		return fmt.Errorf("total collateral overflows")
	}
	total := c.TotalCollateral()
	for i, o := range c.Outcomes {
		if !o.Distributes(total) {
			return fmt.Errorf(
				"outcome %d pays %d and %d, expected total collateral %d",
				i, o.LocalPayout, o.RemotePayout, total,
			)
		}
	}

	if c.OracleInfo.IsDigitDecomposed() {
		if len(c.OracleInfo.RValues) != c.OracleInfo.NbDigits {
			return fmt.Errorf(
				"expected %d oracle nonces, got %d",
				c.OracleInfo.NbDigits, len(c.OracleInfo.RValues),
			)
		}
		_, err := NewOutcomeTrie(c)
		return err
	}

	if len(c.OracleInfo.RValues) != 1 {
		return fmt.Errorf("expected 1 oracle nonce, got %d", len(c.OracleInfo.RValues))
	}
	seen := make(map[string]struct{})
	for _, o := range c.Outcomes {
		if len(o.Message) <= 0 {
			return fmt.Errorf("missing outcome message")
		}
		if _, ok := seen[o.Message]; ok {
			return fmt.Errorf("duplicated outcome %s", o.Message)
		}
		seen[o.Message] = struct{}{}
	}
	return nil
}

// NewOutcomeTrie indexes the digit prefixes of the contract outcomes by
// their position in the outcome list.
func NewOutcomeTrie(c InitialContract) (*digittrie.Trie[int], error) {
	trie, err := digittrie.New[int](c.OracleInfo.Base)
	if err != nil {
		return nil, err
	}
	for i, o := range c.Outcomes {
		if len(o.Digits) > c.OracleInfo.NbDigits {
			return nil, fmt.Errorf("outcome %d has too many digits", i)
		}
		if _, err := trie.Lookup(o.Digits); err == nil {
			return nil, fmt.Errorf("outcome %d overlaps another outcome", i)
		}
		if err := trie.Insert(o.Digits, i); err != nil {
			return nil, fmt.Errorf("invalid outcome %d: %w", i, err)
		}
	}
	return trie, nil
}

func decomposeRanges(
	ranges []RangeOutcome, announcement OracleAnnouncement,
) ([]Outcome, error) {
	if len(ranges) <= 0 {
		return nil, fmt.Errorf("numeric event requires outcome ranges")
	}
	outcomes := make([]Outcome, 0, len(ranges))
	for _, r := range ranges {
		prefixes, err := digittrie.Decompose(
			r.Start, r.End, announcement.Base, announcement.NbDigits,
		)
		if err != nil {
			return nil, fmt.Errorf("invalid range [%d, %d]: %w", r.Start, r.End, err)
		}
		for _, p := range prefixes {
			outcomes = append(outcomes, Outcome{
				Digits:       p,
				LocalPayout:  r.LocalPayout,
				RemotePayout: r.RemotePayout,
			})
		}
	}
	return outcomes, nil
}

func enumeratedOutcomes(outcomes []Outcome) ([]Outcome, error) {
	if len(outcomes) <= 0 {
		return nil, fmt.Errorf("enumerated event requires outcome messages")
	}
	resolved := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		resolved = append(resolved, Outcome{
			Message:      o.Message,
			LocalPayout:  o.LocalPayout,
			RemotePayout: o.RemotePayout,
		})
	}
	return resolved, nil
}
