package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlc-network/dlcd/internal/core/domain"
)

var ErrInvalidSignatures = errors.New("invalid signatures")

// ProtocolError is raised when a peer message or a transition does not fit
// the contract it targets. The event is discarded.
type ProtocolError struct {
	ContractId string
	Reason     string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("protocol error on contract %s: %s", e.ContractId, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// CommandError is returned by failed commands with the last known state of
// the contract.
type CommandError struct {
	ContractId string
	State      domain.ContractState
	Err        error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf(
		"command failed on contract %s (%s): %s", e.ContractId, e.State, e.Err,
	)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func errInvalidState(c domain.Contract, expected []domain.ContractState) error {
	names := make([]string, 0, len(expected))
	for _, s := range expected {
		names = append(names, s.String())
	}
	return &ProtocolError{
		ContractId: c.GetId(),
		Reason: fmt.Sprintf(
			"contract is %s, expected %s", c.GetState(), strings.Join(names, " or "),
		),
	}
}

func errCounterPartyMismatch(c domain.Contract, from string) error {
	return &ProtocolError{
		ContractId: c.GetId(),
		Reason: fmt.Sprintf(
			"message from %s, counterparty is %s", from, c.GetCounterPartyName(),
		),
	}
}
