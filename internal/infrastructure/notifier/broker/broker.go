package broker

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const listenerBufferSize = 64

type listener struct {
	id string
	// contractIds filters the notified contracts, empty means all of them.
	contractIds []string
	ch          chan domain.Contract
}

// Broker fans contract updates out to subscribers. A slow subscriber misses
// updates instead of blocking the notifier.
type Broker struct {
	lock      *sync.Mutex
	listeners []*listener
}

func NewBroker() *Broker {
	return &Broker{
		lock:      &sync.Mutex{},
		listeners: make([]*listener, 0),
	}
}

func (b *Broker) Subscribe(contractIds ...string) (string, <-chan domain.Contract) {
	b.lock.Lock()
	defer b.lock.Unlock()

	l := &listener{
		id:          uuid.New().String(),
		contractIds: contractIds,
		ch:          make(chan domain.Contract, listenerBufferSize),
	}
	b.listeners = append(b.listeners, l)
	return l.id, l.ch
}

func (b *Broker) Unsubscribe(id string) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for i, l := range b.listeners {
		if l.id == id {
			close(l.ch)
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("subscription %s not found", id)
}

func (b *Broker) NotifyContract(contract domain.Contract) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, l := range b.listeners {
		if len(l.contractIds) > 0 && !slices.Contains(l.contractIds, contract.GetId()) {
			continue
		}
		select {
		case l.ch <- contract:
		default:
			log.WithField("subscription", l.id).Warnf(
				"listener full, dropped update of contract %s", contract.GetId(),
			)
		}
	}
}

var _ ports.Notifier = (*Broker)(nil)
