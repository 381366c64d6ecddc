package restservice

import (
	"github.com/dlc-network/dlcd/internal/core/domain"
)

// contractView is the public rendering of a contract. Private keys never
// leave the node.
type contractView struct {
	Id               string            `json:"id"`
	State            string            `json:"state"`
	IsOfferer        bool              `json:"isOfferer"`
	CounterPartyName string            `json:"counterPartyName"`
	LocalCollateral  uint64            `json:"localCollateral"`
	RemoteCollateral uint64            `json:"remoteCollateral"`
	FeeRate          uint64            `json:"feeRate"`
	MaturityTime     int64             `json:"maturityTime"`
	RefundLocktime   int64             `json:"refundLocktime"`
	Outcomes         []domain.Outcome  `json:"outcomes"`
	Oracle           domain.OracleInfo `json:"oracle"`

	FundTxId     string          `json:"fundTxId,omitempty"`
	FundAddress  string          `json:"fundAddress,omitempty"`
	FinalOutcome *domain.Outcome `json:"finalOutcome,omitempty"`
	ClosingTxId  string          `json:"closingTxId,omitempty"`
	ClaimTxId    string          `json:"claimTxId,omitempty"`
	RefundTxId   string          `json:"refundTxId,omitempty"`
	LocalPayout  *uint64         `json:"localPayout,omitempty"`
	RemotePayout *uint64         `json:"remotePayout,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

func toContractView(c domain.Contract) contractView {
	initial := c.Initial()
	view := contractView{
		Id:               initial.Id,
		State:            c.GetState().String(),
		IsOfferer:        initial.IsLocalParty,
		CounterPartyName: initial.CounterPartyName,
		LocalCollateral:  initial.LocalCollateral,
		RemoteCollateral: initial.RemoteCollateral,
		FeeRate:          initial.FeeRate,
		MaturityTime:     initial.MaturityTime,
		RefundLocktime:   initial.RefundLocktime,
		Outcomes:         initial.Outcomes,
		Oracle:           initial.OracleInfo,
	}
	if accepted, ok := domain.AcceptedPart(c); ok {
		view.FundTxId = accepted.FundTxId
		view.FundAddress = accepted.FundAddress
	}

	switch v := c.(type) {
	case domain.MatureContract:
		outcome := v.FinalOutcome
		view.FinalOutcome = &outcome
	case domain.ClosedContract:
		outcome := v.FinalOutcome
		localPayout, remotePayout := v.LocalPayout, v.RemotePayout
		view.FinalOutcome = &outcome
		view.ClosingTxId = v.ClosingTxId
		view.ClaimTxId = v.ClaimTxId
		view.LocalPayout = &localPayout
		view.RemotePayout = &remotePayout
	case domain.RefundedContract:
		view.RefundTxId = v.RefundTxId
	case domain.RejectedContract:
		view.Reason = v.Reason
	case domain.FailedContract:
		view.Reason = v.Reason
	}
	return view
}

func toContractViews(contracts []domain.Contract) []contractView {
	views := make([]contractView, 0, len(contracts))
	for _, c := range contracts {
		views = append(views, toContractView(c))
	}
	return views
}
