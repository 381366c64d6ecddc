package application

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type streamState int

const (
	streamReconnecting streamState = iota
	streamConnected
	streamBackoff
)

func (s streamState) String() string {
	switch s {
	case streamConnected:
		return "connected"
	case streamBackoff:
		return "backoff"
	default:
		return "reconnecting"
	}
}

func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// listen pulls peer messages until ctx is canceled. A broken stream moves
// the loop to backoff, then to reconnecting with refreshed credentials.
func (s *service) listen(ctx context.Context) {
	defer s.wg.Done()

	policy := newReconnectBackoff()
	state := streamReconnecting
	var stream ports.MessageStream
	var delay time.Duration

	defer func() {
		if stream != nil {
			stream.Close()
		}
	}()

	for ctx.Err() == nil {
		switch state {
		case streamReconnecting:
			st, err := s.connect(ctx)
			if err != nil {
				delay = policy.NextBackOff()
				log.WithError(err).Warnf("failed to connect, retrying in %s", delay)
				state = streamBackoff
				continue
			}
			stream = st
			policy.Reset()
			state = streamConnected
			log.Debug("message stream connected")

		case streamConnected:
			msg, err := stream.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				stream.Close()
				stream = nil
				delay = policy.NextBackOff()
				log.WithError(err).Warnf("message stream broken, reconnecting in %s", delay)
				state = streamBackoff
				continue
			}
			s.dispatch(msg)

		case streamBackoff:
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			state = streamReconnecting
		}
	}
}

func (s *service) connect(ctx context.Context) (ports.MessageStream, error) {
	if err := s.messaging.RefreshAuth(ctx); err != nil {
		return nil, err
	}
	return s.messaging.Connect(ctx)
}

// dispatch runs the transition triggered by a peer message. Transitions
// don't inherit the stream context so that Stop doesn't interrupt them.
func (s *service) dispatch(msg *ports.PeerMessage) {
	ctx := context.Background()
	contractId := msg.Message.GetContractId()
	logger := log.WithField("contract", contractId).WithField("from", msg.From)

	unlock := s.locks.acquire(contractId)
	defer unlock()

	switch m := msg.Message.(type) {
	case domain.OfferMessage:
		offered, err := s.handler.OnOfferMessage(ctx, msg.From, m)
		if err != nil {
			logger.WithError(err).Warn("discarded offer")
			return
		}
		s.notifier.NotifyContract(offered)
		logger.Info("received offer")

	case domain.AcceptMessage:
		contract, err := s.handler.OnAcceptMessage(ctx, msg.From, m)
		if contract != nil {
			s.notifier.NotifyContract(contract)
		}
		if err != nil {
			logger.WithError(err).Warn("discarded accept")
			return
		}
		signed, ok := contract.(domain.SignedContract)
		if !ok {
			return
		}
		if err := s.messaging.SendMessage(
			ctx, msg.From, domain.NewSignMessage(signed),
		); err != nil {
			logger.WithError(err).Warn("failed to send sign")
			return
		}
		logger.Info("offer accepted, sent signatures")

	case domain.SignMessage:
		contract, err := s.handler.OnSignMessage(ctx, msg.From, m)
		if contract != nil {
			s.notifier.NotifyContract(contract)
		}
		if err != nil {
			logger.WithError(err).Warn("discarded sign")
			return
		}
		logger.Info("broadcasted funding tx")

	case domain.RejectMessage:
		rejected, err := s.handler.OnContractRejected(ctx, msg.From, m)
		if err != nil {
			logger.WithError(err).Warn("discarded reject")
			return
		}
		s.notifier.NotifyContract(rejected)
		logger.Info("offer rejected by counterparty")

	default:
		logger.Warnf("unknown message type %s", msg.Message.Type())
	}
}
