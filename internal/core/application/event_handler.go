package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// contractEventHandler guards every transition of the contract state
// machine and persists its result.
type contractEventHandler struct {
	repo    domain.ContractRepository
	updater *contractUpdater
	oracle  ports.OracleClient
}

func newContractEventHandler(
	repo domain.ContractRepository, updater *contractUpdater,
	oracle ports.OracleClient,
) *contractEventHandler {
	return &contractEventHandler{repo, updater, oracle}
}

func (h *contractEventHandler) OnInitialize(
	ctx context.Context, terms domain.ContractTerms,
	announcement domain.OracleAnnouncement, refundLocktime int64,
) (domain.InitialContract, error) {
	contract, err := domain.NewInitialContract(
		uuid.New().String(), terms, announcement, refundLocktime,
	)
	if err != nil {
		return domain.InitialContract{}, err
	}
	if err := h.repo.CreateContract(ctx, *contract); err != nil {
		return domain.InitialContract{}, err
	}
	return *contract, nil
}

func (h *contractEventHandler) OnSendOffer(
	ctx context.Context, contract domain.InitialContract,
) (domain.OfferedContract, error) {
	offered, err := h.updater.ToOfferedContract(ctx, contract)
	if err != nil {
		return domain.OfferedContract{}, err
	}
	if err := h.update(ctx, contract, offered); err != nil {
		h.updater.releaseUtxos(ctx, offered.Id, offered.LocalPartyInputs.Utxos)
		return domain.OfferedContract{}, err
	}
	return offered, nil
}

func (h *contractEventHandler) OnSendOfferFail(
	ctx context.Context, contractId, reason string,
) (domain.FailedContract, error) {
	contract, err := h.getContract(
		ctx, contractId, "", domain.StateInitial, domain.StateOffered,
	)
	if err != nil {
		return domain.FailedContract{}, err
	}
	failed := h.updater.ToFailedContract(ctx, contract, reason)
	if err := h.update(ctx, contract, failed); err != nil {
		return domain.FailedContract{}, err
	}
	return failed, nil
}

func (h *contractEventHandler) OnOfferMessage(
	ctx context.Context, from string, msg domain.OfferMessage,
) (domain.OfferedContract, error) {
	offered := domain.OfferedContract{
		InitialContract: domain.InitialContract{
			Id:               msg.ContractId,
			State:            domain.StateOffered,
			IsLocalParty:     false,
			CounterPartyName: from,
			LocalCollateral:  msg.LocalCollateral,
			RemoteCollateral: msg.RemoteCollateral,
			FeeRate:          msg.FeeRate,
			MaturityTime:     msg.MaturityTime,
			RefundLocktime:   msg.RefundLocktime,
			Outcomes:         msg.Outcomes,
			OracleInfo:       msg.OracleInfo,
		},
		LocalPartyInputs: msg.LocalPartyInputs,
	}
	if err := validateOffer(offered); err != nil {
		return domain.OfferedContract{}, &ProtocolError{
			ContractId: msg.ContractId, Reason: "invalid offer", Err: err,
		}
	}

	// CETs are locked to the offered oracle nonces.
	announcement, err := h.oracle.GetAnnouncement(
		ctx, msg.OracleInfo.AssetId, msg.OracleInfo.MaturityTime,
	)
	if err != nil {
		return domain.OfferedContract{}, fmt.Errorf("failed to get oracle announcement: %w", err)
	}
	if !announcement.Info().SameEvent(msg.OracleInfo) {
		return domain.OfferedContract{}, &ProtocolError{
			ContractId: msg.ContractId,
			Reason:     "invalid offer",
			Err:        fmt.Errorf("offer oracle does not match announcement"),
		}
	}

	if err := h.repo.CreateContract(ctx, offered); err != nil {
		if errors.Is(err, domain.ErrContractAlreadyExists) {
			return domain.OfferedContract{}, &ProtocolError{
				ContractId: msg.ContractId, Reason: "duplicated offer", Err: err,
			}
		}
		return domain.OfferedContract{}, err
	}
	return offered, nil
}

func (h *contractEventHandler) OnOfferAccepted(
	ctx context.Context, contractId string,
) (domain.AcceptedContract, error) {
	contract, err := h.getContract(ctx, contractId, "", domain.StateOffered)
	if err != nil {
		return domain.AcceptedContract{}, err
	}
	offered, err := as[domain.OfferedContract](contract)
	if err != nil {
		return domain.AcceptedContract{}, err
	}
	if offered.IsLocalParty {
		return domain.AcceptedContract{}, &ProtocolError{
			ContractId: contractId, Reason: "can't accept own offer",
		}
	}

	accepted, err := h.updater.ToAcceptContract(ctx, offered)
	if err != nil {
		return domain.AcceptedContract{}, err
	}
	if err := h.update(ctx, offered, accepted); err != nil {
		h.updater.releaseUtxos(ctx, contractId, accepted.RemotePartyInputs.Utxos)
		return domain.AcceptedContract{}, err
	}
	return accepted, nil
}

func (h *contractEventHandler) OnOfferAcceptFailed(
	ctx context.Context, contractId string,
) (domain.OfferedContract, error) {
	contract, err := h.getContract(ctx, contractId, "", domain.StateAccepted)
	if err != nil {
		return domain.OfferedContract{}, err
	}
	accepted, err := as[domain.AcceptedContract](contract)
	if err != nil {
		return domain.OfferedContract{}, err
	}

	offered := h.updater.RollbackAccept(ctx, accepted)
	if err := h.update(ctx, accepted, offered); err != nil {
		return domain.OfferedContract{}, err
	}
	return offered, nil
}

// OnAcceptMessage moves an offer made by this node to Signed. A message that
// can't be turned into a valid transaction set rejects the contract; the
// rejected contract is returned along with the error.
func (h *contractEventHandler) OnAcceptMessage(
	ctx context.Context, from string, msg domain.AcceptMessage,
) (domain.Contract, error) {
	contract, err := h.getContract(ctx, msg.ContractId, from, domain.StateOffered)
	if err != nil {
		return nil, err
	}
	offered, err := as[domain.OfferedContract](contract)
	if err != nil {
		return nil, err
	}
	if !offered.IsLocalParty {
		return nil, &ProtocolError{
			ContractId: offered.Id, Reason: "accept for an offer received",
		}
	}

	accepted, err := h.updater.WithAcceptMessage(ctx, offered, msg)
	if err != nil {
		return h.reject(ctx, offered, "invalid accept", err)
	}
	if !h.updater.VerifyContractSignatures(accepted) {
		return h.reject(ctx, offered, "invalid accept", ErrInvalidSignatures)
	}
	signed, err := h.updater.ToSignedContract(ctx, accepted)
	if err != nil {
		return h.reject(ctx, offered, "failed to sign", err)
	}

	if err := h.update(ctx, offered, signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// OnSignMessage moves an accepted offer to Broadcast once the offerer
// signatures verify.
func (h *contractEventHandler) OnSignMessage(
	ctx context.Context, from string, msg domain.SignMessage,
) (domain.Contract, error) {
	contract, err := h.getContract(ctx, msg.ContractId, from, domain.StateAccepted)
	if err != nil {
		return nil, err
	}
	accepted, err := as[domain.AcceptedContract](contract)
	if err != nil {
		return nil, err
	}
	if accepted.IsLocalParty {
		return nil, &ProtocolError{
			ContractId: accepted.Id, Reason: "sign for an offer made by this node",
		}
	}

	signed := h.updater.WithSignMessage(accepted, msg)
	if !h.updater.VerifyContractSignatures(signed) {
		return h.reject(ctx, accepted, "invalid sign", ErrInvalidSignatures)
	}
	broadcast, err := h.updater.ToBroadcast(ctx, signed)
	if err != nil {
		return h.reject(ctx, accepted, "failed to broadcast", err)
	}

	if err := h.update(ctx, accepted, broadcast); err != nil {
		return nil, err
	}
	return broadcast, nil
}

func (h *contractEventHandler) OnContractConfirmed(
	ctx context.Context, contractId string,
) (domain.ConfirmedContract, error) {
	contract, err := h.getContract(
		ctx, contractId, "", domain.StateSigned, domain.StateBroadcast,
	)
	if err != nil {
		return domain.ConfirmedContract{}, err
	}
	confirmed, err := h.updater.ToConfirmedContract(contract)
	if err != nil {
		return domain.ConfirmedContract{}, err
	}
	if err := h.update(ctx, contract, confirmed); err != nil {
		return domain.ConfirmedContract{}, err
	}
	return confirmed, nil
}

func (h *contractEventHandler) OnContractMature(
	ctx context.Context, contractId string, attestation domain.OracleAttestation,
) (domain.MatureContract, error) {
	confirmed, err := h.getConfirmed(ctx, contractId)
	if err != nil {
		return domain.MatureContract{}, err
	}
	mature, err := h.updater.ToMatureContract(confirmed, attestation)
	if err != nil {
		return domain.MatureContract{}, err
	}
	if err := h.update(ctx, confirmed, mature); err != nil {
		return domain.MatureContract{}, err
	}
	return mature, nil
}

func (h *contractEventHandler) OnClosed(
	ctx context.Context, contractId string,
) (domain.ClosedContract, error) {
	mature, err := h.getMature(ctx, contractId)
	if err != nil {
		return domain.ClosedContract{}, err
	}
	closed, err := h.updater.ToUnilateralClosed(ctx, mature)
	if err != nil {
		return domain.ClosedContract{}, err
	}
	if err := h.update(ctx, mature, closed); err != nil {
		return domain.ClosedContract{}, err
	}
	return closed, nil
}

func (h *contractEventHandler) OnClosedByOther(
	ctx context.Context, contractId string,
) (domain.ClosedContract, error) {
	mature, err := h.getMature(ctx, contractId)
	if err != nil {
		return domain.ClosedContract{}, err
	}
	closed, err := h.updater.ToClosedByOther(ctx, mature)
	if err != nil {
		return domain.ClosedContract{}, err
	}
	if err := h.update(ctx, mature, closed); err != nil {
		return domain.ClosedContract{}, err
	}
	return closed, nil
}

func (h *contractEventHandler) OnContractRefund(
	ctx context.Context, contractId string,
) (domain.RefundedContract, error) {
	confirmed, err := h.getConfirmed(ctx, contractId)
	if err != nil {
		return domain.RefundedContract{}, err
	}
	refunded, err := h.updater.ToRefundedContract(ctx, confirmed)
	if err != nil {
		return domain.RefundedContract{}, err
	}
	if err := h.update(ctx, confirmed, refunded); err != nil {
		return domain.RefundedContract{}, err
	}
	return refunded, nil
}

func (h *contractEventHandler) OnContractRefundByOther(
	ctx context.Context, contractId, txid string,
) (domain.RefundedContract, error) {
	confirmed, err := h.getConfirmed(ctx, contractId)
	if err != nil {
		return domain.RefundedContract{}, err
	}
	refunded := h.updater.ToRefundedByOther(ctx, confirmed, txid)
	if err := h.update(ctx, confirmed, refunded); err != nil {
		return domain.RefundedContract{}, err
	}
	return refunded, nil
}

// OnContractRejected handles the counterparty refusing an offer made by
// this node.
func (h *contractEventHandler) OnContractRejected(
	ctx context.Context, from string, msg domain.RejectMessage,
) (domain.RejectedContract, error) {
	contract, err := h.getContract(ctx, msg.ContractId, from, domain.StateOffered)
	if err != nil {
		return domain.RejectedContract{}, err
	}
	if !contract.Initial().IsLocalParty {
		return domain.RejectedContract{}, &ProtocolError{
			ContractId: msg.ContractId, Reason: "reject for an offer received",
		}
	}
	reason := msg.Reason
	if len(reason) <= 0 {
		reason = "rejected by counterparty"
	}
	return h.toRejected(ctx, contract, reason)
}

// OnRejectContract refuses an offer received by this node.
func (h *contractEventHandler) OnRejectContract(
	ctx context.Context, contractId string,
) (domain.RejectedContract, error) {
	contract, err := h.getContract(ctx, contractId, "", domain.StateOffered)
	if err != nil {
		return domain.RejectedContract{}, err
	}
	if contract.Initial().IsLocalParty {
		return domain.RejectedContract{}, &ProtocolError{
			ContractId: contractId, Reason: "can't reject own offer",
		}
	}
	return h.toRejected(ctx, contract, "rejected by user")
}

func (h *contractEventHandler) reject(
	ctx context.Context, contract domain.Contract, reason string, cause error,
) (domain.Contract, error) {
	log.WithError(cause).WithField("contract", contract.GetId()).Warnf(
		"rejecting contract: %s", reason,
	)
	rejected, err := h.toRejected(ctx, contract, fmt.Sprintf("%s: %s", reason, cause))
	if err != nil {
		return nil, err
	}
	return rejected, &ProtocolError{
		ContractId: contract.GetId(), Reason: reason, Err: cause,
	}
}

func (h *contractEventHandler) toRejected(
	ctx context.Context, contract domain.Contract, reason string,
) (domain.RejectedContract, error) {
	rejected, err := h.updater.ToRejectedContract(ctx, contract, reason)
	if err != nil {
		return domain.RejectedContract{}, err
	}
	if err := h.update(ctx, contract, rejected); err != nil {
		return domain.RejectedContract{}, err
	}
	return rejected, nil
}

// getContract fetches a contract and checks its state and, for peer events,
// the sender.
func (h *contractEventHandler) getContract(
	ctx context.Context, contractId, from string, states ...domain.ContractState,
) (domain.Contract, error) {
	contract, err := h.repo.GetContract(ctx, contractId)
	if err != nil {
		if errors.Is(err, domain.ErrContractNotFound) && len(from) > 0 {
			return nil, &ProtocolError{
				ContractId: contractId, Reason: "unknown contract", Err: err,
			}
		}
		return nil, err
	}
	if len(from) > 0 && contract.GetCounterPartyName() != from {
		return nil, errCounterPartyMismatch(contract, from)
	}
	for _, s := range states {
		if contract.GetState() == s {
			return contract, nil
		}
	}
	return nil, errInvalidState(contract, states)
}

func (h *contractEventHandler) getConfirmed(
	ctx context.Context, contractId string,
) (domain.ConfirmedContract, error) {
	contract, err := h.getContract(ctx, contractId, "", domain.StateConfirmed)
	if err != nil {
		return domain.ConfirmedContract{}, err
	}
	return as[domain.ConfirmedContract](contract)
}

func (h *contractEventHandler) getMature(
	ctx context.Context, contractId string,
) (domain.MatureContract, error) {
	contract, err := h.getContract(ctx, contractId, "", domain.StateMature)
	if err != nil {
		return domain.MatureContract{}, err
	}
	return as[domain.MatureContract](contract)
}

func (h *contractEventHandler) update(
	ctx context.Context, prev, next domain.Contract,
) error {
	if !prev.GetState().CanTransitionTo(next.GetState()) {
		return &ProtocolError{
			ContractId: prev.GetId(),
			Reason: fmt.Sprintf(
				"transition %s -> %s not allowed", prev.GetState(), next.GetState(),
			),
		}
	}
	if err := h.repo.UpdateContract(ctx, next); err != nil {
		return err
	}
	log.WithField("contract", next.GetId()).Debugf(
		"contract moved %s -> %s", prev.GetState(), next.GetState(),
	)
	return nil
}

func as[T domain.Contract](contract domain.Contract) (T, error) {
	v, ok := contract.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf(
			"contract %s has unexpected type %T", contract.GetId(), contract,
		)
	}
	return v, nil
}

func validateOffer(c domain.OfferedContract) error {
	if c.TotalCollateral() <= 0 {
		return fmt.Errorf("total collateral must be greater than 0")
	}
	if c.FeeRate <= 0 {
		return fmt.Errorf("fee rate must be greater than 0")
	}
	if c.RefundLocktime <= c.MaturityTime {
		return fmt.Errorf("refund locktime must be after maturity time")
	}
	if c.OracleInfo.MaturityTime != c.MaturityTime {
		return fmt.Errorf("oracle event does not mature with the contract")
	}
	if c.LocalPartyInputs.UtxosAmount() < c.LocalCollateral {
		return fmt.Errorf("offerer inputs don't cover its collateral")
	}
	return domain.ValidateOutcomes(c.InitialContract)
}
