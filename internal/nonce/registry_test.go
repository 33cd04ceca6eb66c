package nonce

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTryReserve_FirstInsertSucceeds(t *testing.T) {
	r := New(nil)
	if !r.TryReserve("n1", time.Now().Add(time.Minute).UnixMilli()) {
		t.Fatal("first reservation of a fresh nonce should succeed")
	}
}

func TestTryReserve_DuplicateFails(t *testing.T) {
	r := New(nil)
	exp := time.Now().Add(time.Minute).UnixMilli()
	if !r.TryReserve("n1", exp) {
		t.Fatal("first reservation should succeed")
	}
	if r.TryReserve("n1", exp) {
		t.Fatal("second reservation of the same nonce must fail")
	}
}

func TestSweep_RemovesExpiredOnly(t *testing.T) {
	r := New(nil)
	past := time.Now().Add(-time.Minute).UnixMilli()
	future := time.Now().Add(time.Minute).UnixMilli()

	r.TryReserve("expired", past)
	r.TryReserve("live", future)

	removed := r.Sweep()
	if removed != 1 {
		t.Fatalf("Sweep() removed %d, want 1", removed)
	}
	if r.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", r.Size())
	}
	if !r.TryReserve("expired", future) {
		t.Error("a swept nonce should be reservable again")
	}
}

func TestTryReserve_ConcurrentSafety(t *testing.T) {
	r := New(nil)
	exp := time.Now().Add(time.Minute).UnixMilli()

	const n = 200
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			successes[i] = r.TryReserve("shared-nonce", exp)
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("exactly one concurrent TryReserve should succeed, got %d", count)
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	r := New(nil)
	r.entries["old"] = time.Now().Add(-time.Hour).UnixMilli()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The real ticker only fires every SweepInterval, so this checks the
	// Start/Stop lifecycle rather than waiting for a background sweep.
	go r.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	if !r.Running() {
		t.Error("registry should report running after Start")
	}

	r.Stop()
	time.Sleep(10 * time.Millisecond)
	if r.Running() {
		t.Error("registry should report stopped after Stop")
	}
	if r.Size() != 0 {
		t.Errorf("Stop should release all entries, Size() = %d", r.Size())
	}
}
