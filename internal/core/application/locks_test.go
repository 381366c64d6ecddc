package application

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContractLocks(t *testing.T) {
	locks := newContractLocks()

	t.Run("same contract", func(t *testing.T) {
		var inFlight, maxInFlight int32
		wg := &sync.WaitGroup{}
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locks.acquire("contract")
				defer unlock()

				n := atomic.AddInt32(&inFlight, 1)
				for {
					max := atomic.LoadInt32(&maxInFlight)
					if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), maxInFlight)
		require.Zero(t, locks.len())
	})

	t.Run("different contracts", func(t *testing.T) {
		unlock := locks.acquire("contract-1")
		defer unlock()

		done := make(chan struct{})
		go func() {
			release := locks.acquire("contract-2")
			release()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on contract-1 blocked contract-2")
		}
		require.Equal(t, 1, locks.len())
	})
}
