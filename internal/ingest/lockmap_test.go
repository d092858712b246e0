package ingest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockMapSerializesPerKey(t *testing.T) {
	m := newLockMap()

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("doc-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}

func TestLockMapEntriesAreReleased(t *testing.T) {
	m := newLockMap()

	unlock := m.Lock("doc-1")
	unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.locks)
}

func TestLockMapIndependentKeys(t *testing.T) {
	m := newLockMap()

	unlockA := m.Lock("doc-a")
	defer unlockA()

	// A different key must not block.
	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("doc-b")
		unlockB()
		close(done)
	}()
	<-done
}
