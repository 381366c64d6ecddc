package application

import "sync"

type lockEntry struct {
	lock *sync.Mutex
	refs int
}

// contractLocks serializes transitions of the same contract. Entries are
// dropped once nobody holds or waits for them.
type contractLocks struct {
	lock    *sync.Mutex
	entries map[string]*lockEntry
}

func newContractLocks() *contractLocks {
	return &contractLocks{
		lock:    &sync.Mutex{},
		entries: make(map[string]*lockEntry),
	}
}

func (l *contractLocks) acquire(contractId string) func() {
	l.lock.Lock()
	entry, ok := l.entries[contractId]
	if !ok {
		entry = &lockEntry{lock: &sync.Mutex{}}
		l.entries[contractId] = entry
	}
	entry.refs++
	l.lock.Unlock()

	entry.lock.Lock()
	return func() {
		entry.lock.Unlock()

		l.lock.Lock()
		defer l.lock.Unlock()
		entry.refs--
		if entry.refs <= 0 {
			delete(l.entries, contractId)
		}
	}
}

func (l *contractLocks) len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.entries)
}
