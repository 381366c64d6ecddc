package application

import (
	"context"
	"errors"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// reconcile drives contracts whose progress depends on the chain or the
// oracle. Failures are logged and retried at the next pass.
func (s *service) reconcile() {
	ctx := context.Background()

	s.closeMatureContracts(ctx)
	s.confirmContracts(ctx)
	s.settleContracts(ctx)
}

// closeMatureContracts retries closing contracts whose close failed.
func (s *service) closeMatureContracts(ctx context.Context) {
	contracts, err := s.repoManager.Contracts().QueryContracts(ctx, domain.ContractFilter{
		States: []domain.ContractState{domain.StateMature},
	})
	if err != nil {
		log.WithError(err).Warn("failed to query mature contracts")
		return
	}

	for _, c := range contracts {
		mature, ok := c.(domain.MatureContract)
		if !ok {
			continue
		}
		unlock := s.locks.acquire(c.GetId())
		s.closeContract(ctx, mature)
		unlock()
	}
}

func (s *service) confirmContracts(ctx context.Context) {
	contracts, err := s.repoManager.Contracts().QueryContracts(ctx, domain.ContractFilter{
		States: []domain.ContractState{domain.StateSigned, domain.StateBroadcast},
	})
	if err != nil {
		log.WithError(err).Warn("failed to query signed contracts")
		return
	}

	for _, c := range contracts {
		signed, ok := domain.SignedPart(c)
		if !ok {
			continue
		}
		logger := log.WithField("contract", c.GetId())

		tx, err := s.wallet.GetTransaction(ctx, signed.FundTxId)
		if err != nil {
			if !errors.Is(err, ports.ErrTransactionNotFound) {
				logger.WithError(err).Warn("failed to get funding tx")
			}
			continue
		}
		if tx.Confirmations < s.cfg.ConfirmationThreshold {
			continue
		}

		unlock := s.locks.acquire(c.GetId())
		confirmed, err := s.handler.OnContractConfirmed(ctx, c.GetId())
		unlock()
		if err != nil {
			logger.WithError(err).Warn("failed to confirm contract")
			continue
		}
		s.notifier.NotifyContract(confirmed)
		logger.Infof("funding tx %s confirmed", signed.FundTxId)
	}
}

// settleContracts closes matured contracts with the oracle attestation, or
// refunds them once the refund locktime elapsed without one.
func (s *service) settleContracts(ctx context.Context) {
	now := s.now().Unix()
	contracts, err := s.repoManager.Contracts().QueryContracts(ctx, domain.ContractFilter{
		States:        []domain.ContractState{domain.StateConfirmed},
		MaturedBefore: now,
	})
	if err != nil {
		log.WithError(err).Warn("failed to query confirmed contracts")
		return
	}

	for _, c := range contracts {
		unlock := s.locks.acquire(c.GetId())
		s.settleContract(ctx, c, now)
		unlock()
	}
}

// settleContract never matures a contract whose refund is already published:
// past the refund locktime the counterparty may have refunded it before the
// attestation showed up.
func (s *service) settleContract(ctx context.Context, contract domain.Contract, now int64) {
	c := contract.Initial()
	logger := log.WithField("contract", c.Id)

	if now >= c.RefundLocktime {
		txid, published, err := s.publishedRefund(ctx, contract)
		if err != nil {
			logger.WithError(err).Warn("failed to look up refund tx")
			return
		}
		if published {
			s.refundedByOther(ctx, c.Id, txid)
			return
		}
	}

	attestation, err := s.oracle.GetAttestation(
		ctx, c.OracleInfo.AssetId, c.OracleInfo.MaturityTime,
	)
	if err == nil {
		mature, err := s.handler.OnContractMature(ctx, c.Id, *attestation)
		if err == nil {
			s.notifier.NotifyContract(mature)
			logger.Infof("contract matured with outcome %v", mature.OutcomeValues)
			s.closeContract(ctx, mature)
			return
		}
		logger.WithError(err).Warn("failed to mature contract")
	} else if !errors.Is(err, ports.ErrAttestationNotAvailable) {
		logger.WithError(err).Warn("failed to get attestation")
	}

	if now < c.RefundLocktime {
		return
	}
	s.refundContract(ctx, c.Id)
}

// closeContract records the CET of the counterparty when that is the one
// on chain, otherwise publishes or resumes publishing the own one.
func (s *service) closeContract(ctx context.Context, mature domain.MatureContract) {
	logger := log.WithField("contract", mature.Id)

	var closed domain.ClosedContract
	var err error
	if s.isPublished(ctx, mature.CounterPartyCetId) &&
		!s.isPublished(ctx, mature.FinalCetId) {
		closed, err = s.handler.OnClosedByOther(ctx, mature.Id)
	} else {
		closed, err = s.handler.OnClosed(ctx, mature.Id)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to close contract")
		return
	}
	s.notifier.NotifyContract(closed)
	logger.Infof(
		"contract closed with tx %s (local payout %d, remote payout %d)",
		closed.ClosingTxId, closed.LocalPayout, closed.RemotePayout,
	)
}

func (s *service) refundContract(ctx context.Context, contractId string) {
	logger := log.WithField("contract", contractId)

	contract, err := s.repoManager.Contracts().GetContract(ctx, contractId)
	if err != nil {
		logger.WithError(err).Warn("failed to get contract")
		return
	}
	signed, ok := domain.SignedPart(contract)
	if !ok {
		return
	}
	refundTx, err := s.engine.DecodeTransaction(signed.RefundTxHex)
	if err != nil {
		logger.WithError(err).Warn("failed to decode refund tx")
		return
	}

	var refunded domain.RefundedContract
	if s.isPublished(ctx, refundTx.Txid) {
		refunded, err = s.handler.OnContractRefundByOther(ctx, contractId, refundTx.Txid)
	} else {
		refunded, err = s.handler.OnContractRefund(ctx, contractId)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to refund contract")
		return
	}
	s.notifier.NotifyContract(refunded)
	logger.Infof("contract refunded with tx %s", refunded.RefundTxId)
}

func (s *service) refundedByOther(ctx context.Context, contractId, txid string) {
	logger := log.WithField("contract", contractId)

	refunded, err := s.handler.OnContractRefundByOther(ctx, contractId, txid)
	if err != nil {
		logger.WithError(err).Warn("failed to record refund")
		return
	}
	s.notifier.NotifyContract(refunded)
	logger.Infof("contract refunded by counterparty with tx %s", txid)
}

// publishedRefund returns the refund txid of c and whether the wallet sees
// it in mempool or on chain.
func (s *service) publishedRefund(
	ctx context.Context, c domain.Contract,
) (string, bool, error) {
	signed, ok := domain.SignedPart(c)
	if !ok {
		return "", false, nil
	}
	refundTx, err := s.engine.DecodeTransaction(signed.RefundTxHex)
	if err != nil {
		return "", false, err
	}
	_, err = s.wallet.GetTransaction(ctx, refundTx.Txid)
	if err == nil {
		return refundTx.Txid, true, nil
	}
	if errors.Is(err, ports.ErrTransactionNotFound) {
		return refundTx.Txid, false, nil
	}
	return "", false, err
}

func (s *service) isPublished(ctx context.Context, txid string) bool {
	if len(txid) <= 0 {
		return false
	}
	_, err := s.wallet.GetTransaction(ctx, txid)
	return err == nil
}
