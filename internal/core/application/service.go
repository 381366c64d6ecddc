package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultConfirmationThreshold = 6
	DefaultRefundDelay           = 7 * 24 * time.Hour
	DefaultReconcileInterval     = 30 * time.Second
)

type Service interface {
	Start() error
	Stop()
	SendContractOffer(
		ctx context.Context, terms domain.ContractTerms,
	) (domain.Contract, error)
	AcceptContractOffer(ctx context.Context, contractId string) (domain.Contract, error)
	RejectContractOffer(ctx context.Context, contractId string) (domain.Contract, error)
	GetContract(ctx context.Context, contractId string) (domain.Contract, error)
	ListContracts(
		ctx context.Context, filter domain.ContractFilter,
	) ([]domain.Contract, error)
}

type Config struct {
	// Confirmations required by the funding tx to consider a contract
	// confirmed.
	ConfirmationThreshold int64
	// Time between contract maturity and refund locktime.
	RefundDelay       time.Duration
	ReconcileInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConfirmationThreshold <= 0 {
		c.ConfirmationThreshold = DefaultConfirmationThreshold
	}
	if c.RefundDelay <= 0 {
		c.RefundDelay = DefaultRefundDelay
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = DefaultReconcileInterval
	}
	return c
}

type service struct {
	cfg Config

	repoManager ports.RepoManager
	wallet      ports.WalletService
	engine      ports.CryptoEngine
	oracle      ports.OracleClient
	messaging   ports.MessageService
	notifier    ports.Notifier
	scheduler   ports.SchedulerService

	handler *contractEventHandler
	locks   *contractLocks
	now     func() time.Time

	lock   *sync.Mutex
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func NewService(
	cfg Config, repoManager ports.RepoManager, wallet ports.WalletService,
	engine ports.CryptoEngine, oracle ports.OracleClient,
	messaging ports.MessageService, notifier ports.Notifier,
	scheduler ports.SchedulerService,
) (Service, error) {
	return newService(
		cfg, repoManager, wallet, engine, oracle, messaging, notifier, scheduler,
	)
}

func newService(
	cfg Config, repoManager ports.RepoManager, wallet ports.WalletService,
	engine ports.CryptoEngine, oracle ports.OracleClient,
	messaging ports.MessageService, notifier ports.Notifier,
	scheduler ports.SchedulerService,
) (*service, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if wallet == nil {
		return nil, fmt.Errorf("missing wallet service")
	}
	if engine == nil {
		return nil, fmt.Errorf("missing crypto engine")
	}
	if oracle == nil {
		return nil, fmt.Errorf("missing oracle client")
	}
	if messaging == nil {
		return nil, fmt.Errorf("missing message service")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	updater := newContractUpdater(wallet, engine)
	return &service{
		cfg:         cfg.withDefaults(),
		repoManager: repoManager,
		wallet:      wallet,
		engine:      engine,
		oracle:      oracle,
		messaging:   messaging,
		notifier:    notifier,
		scheduler:   scheduler,
		handler:     newContractEventHandler(repoManager.Contracts(), updater, oracle),
		locks:       newContractLocks(),
		now:         time.Now,
		lock:        &sync.Mutex{},
		wg:          &sync.WaitGroup{},
	}, nil
}

func (s *service) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("service already started")
	}

	if err := s.scheduler.ScheduleEvery(
		s.cfg.ReconcileInterval, s.reconcile,
	); err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}
	s.scheduler.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.listen(ctx)

	log.Debugf(
		"contract manager started, reconciling every %s", s.cfg.ReconcileInterval,
	)
	return nil
}

func (s *service) Stop() {
	s.lock.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.lock.Unlock()

	s.scheduler.Stop()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.messaging.Close()
	s.wallet.Close()
	s.repoManager.Close()
	log.Debug("contract manager stopped")
}

func (s *service) SendContractOffer(
	ctx context.Context, terms domain.ContractTerms,
) (domain.Contract, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	announcement, err := s.oracle.GetAnnouncement(
		ctx, terms.AssetId, terms.MaturityTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get oracle announcement: %w", err)
	}
	refundLocktime := terms.MaturityTime + int64(s.cfg.RefundDelay.Seconds())

	initial, err := s.handler.OnInitialize(ctx, terms, *announcement, refundLocktime)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(initial.Id)
	defer unlock()

	offered, err := s.handler.OnSendOffer(ctx, initial)
	if err != nil {
		return nil, s.failOffer(ctx, initial.Id, err)
	}
	if err := s.messaging.SendMessage(
		ctx, terms.CounterPartyName, domain.NewOfferMessage(offered),
	); err != nil {
		return nil, s.failOffer(ctx, initial.Id, fmt.Errorf("failed to send offer: %w", err))
	}

	s.notifier.NotifyContract(offered)
	log.WithField("contract", offered.Id).Infof(
		"sent offer to %s", offered.CounterPartyName,
	)
	return offered, nil
}

func (s *service) AcceptContractOffer(
	ctx context.Context, contractId string,
) (domain.Contract, error) {
	unlock := s.locks.acquire(contractId)
	defer unlock()

	accepted, err := s.handler.OnOfferAccepted(ctx, contractId)
	if err != nil {
		return nil, s.commandError(ctx, contractId, err)
	}
	if err := s.messaging.SendMessage(
		ctx, accepted.CounterPartyName, domain.NewAcceptMessage(accepted),
	); err != nil {
		err = fmt.Errorf("failed to send accept: %w", err)
		offered, rerr := s.handler.OnOfferAcceptFailed(ctx, contractId)
		if rerr != nil {
			log.WithError(rerr).WithField("contract", contractId).Warn(
				"failed to roll back accept",
			)
			return nil, s.commandError(ctx, contractId, err)
		}
		s.notifier.NotifyContract(offered)
		return nil, &CommandError{contractId, offered.State, err}
	}

	s.notifier.NotifyContract(accepted)
	log.WithField("contract", contractId).Info("accepted offer")
	return accepted, nil
}

func (s *service) RejectContractOffer(
	ctx context.Context, contractId string,
) (domain.Contract, error) {
	unlock := s.locks.acquire(contractId)
	defer unlock()

	rejected, err := s.handler.OnRejectContract(ctx, contractId)
	if err != nil {
		return nil, s.commandError(ctx, contractId, err)
	}
	s.notifier.NotifyContract(rejected)

	if err := s.messaging.SendMessage(
		ctx, rejected.CounterPartyName,
		domain.RejectMessage{ContractId: contractId, Reason: rejected.Reason},
	); err != nil {
		return nil, &CommandError{
			contractId, rejected.State, fmt.Errorf("failed to send reject: %w", err),
		}
	}

	log.WithField("contract", contractId).Info("rejected offer")
	return rejected, nil
}

func (s *service) GetContract(
	ctx context.Context, contractId string,
) (domain.Contract, error) {
	return s.repoManager.Contracts().GetContract(ctx, contractId)
}

func (s *service) ListContracts(
	ctx context.Context, filter domain.ContractFilter,
) ([]domain.Contract, error) {
	return s.repoManager.Contracts().QueryContracts(ctx, filter)
}

// failOffer moves a contract whose offer couldn't be made to Failed.
func (s *service) failOffer(ctx context.Context, contractId string, cause error) error {
	failed, err := s.handler.OnSendOfferFail(ctx, contractId, cause.Error())
	if err != nil {
		log.WithError(err).WithField("contract", contractId).Warn(
			"failed to mark contract as failed",
		)
		return s.commandError(ctx, contractId, cause)
	}
	s.notifier.NotifyContract(failed)
	log.WithError(cause).WithField("contract", contractId).Warn("offer failed")
	return &CommandError{contractId, failed.State, cause}
}

// commandError wraps err with the last known state of the contract.
func (s *service) commandError(ctx context.Context, contractId string, err error) error {
	contract, gerr := s.repoManager.Contracts().GetContract(ctx, contractId)
	if gerr != nil {
		return err
	}
	return &CommandError{contractId, contract.GetState(), err}
}

type noopNotifier struct{}

func (noopNotifier) NotifyContract(domain.Contract) {}
