package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrContractNotFound      = errors.New("contract not found")
	ErrContractAlreadyExists = errors.New("contract already exists")
)

// ContractFilter selects contracts by state set, counterparty and deadlines.
// Zero fields do not filter.
type ContractFilter struct {
	States               []ContractState
	CounterPartyName     string
	MaturedBefore        int64
	RefundLocktimeBefore int64
}

func (f ContractFilter) Matches(c Contract) bool {
	if len(f.States) > 0 {
		found := false
		for _, s := range f.States {
			if c.GetState() == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.CounterPartyName) > 0 && c.GetCounterPartyName() != f.CounterPartyName {
		return false
	}
	initial := c.Initial()
	if f.MaturedBefore > 0 && initial.MaturityTime > f.MaturedBefore {
		return false
	}
	if f.RefundLocktimeBefore > 0 && initial.RefundLocktime > f.RefundLocktimeBefore {
		return false
	}
	return true
}

type ContractRepository interface {
	CreateContract(ctx context.Context, contract Contract) error
	GetContract(ctx context.Context, id string) (Contract, error)
	UpdateContract(ctx context.Context, contract Contract) error
	QueryContracts(ctx context.Context, filter ContractFilter) ([]Contract, error)
	Close()
}

func EncodeContract(contract Contract) ([]byte, error) {
	return json.Marshal(contract)
}

// DecodeContract restores the variant matching the given state.
func DecodeContract(state ContractState, buf []byte) (Contract, error) {
	var contract Contract
	var err error
	switch state {
	case StateInitial:
		var c InitialContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateOffered:
		var c OfferedContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateAccepted:
		var c AcceptedContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateSigned:
		var c SignedContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateBroadcast:
		var c BroadcastContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateConfirmed:
		var c ConfirmedContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateMature:
		var c MatureContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateClosed:
		var c ClosedContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateRejected:
		var c RejectedContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateFailed:
		var c FailedContract
		err = json.Unmarshal(buf, &c)
		contract = c
	case StateRefunded:
		var c RefundedContract
		err = json.Unmarshal(buf, &c)
		contract = c
	default:
		return nil, fmt.Errorf("unknown contract state %d", int(state))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s contract: %w", state, err)
	}
	if contract.GetState() != state {
		return nil, fmt.Errorf(
			"decoded contract in state %s, expected %s", contract.GetState(), state,
		)
	}
	return contract, nil
}
