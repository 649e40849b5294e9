package traversal

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTabLocksSerializeSameTab(t *testing.T) {
	l := newTabLocks()
	var inside atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("tab")
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if got := maxSeen.Load(); got != 1 {
		t.Fatalf("max concurrent holders = %d; want 1", got)
	}
	if got := l.size(); got != 0 {
		t.Fatalf("size() after release = %d; want 0", got)
	}
}

func TestTabLocksIndependentTabs(t *testing.T) {
	l := newTabLocks()
	unlockA := l.lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlock := l.lock("b")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}
