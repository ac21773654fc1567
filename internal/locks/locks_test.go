package locks

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquireRelease(t *testing.T) {
	tbl := NewTable(30 * time.Second)

	if !tbl.TryAcquire("withdraw:0xabc") {
		t.Fatal("first acquire should succeed")
	}
	if tbl.TryAcquire("withdraw:0xabc") {
		t.Error("second acquire on held key should fail")
	}
	if !tbl.TryAcquire("withdraw:0xdef") {
		t.Error("different key should be independent")
	}

	tbl.Release("withdraw:0xabc")
	if !tbl.TryAcquire("withdraw:0xabc") {
		t.Error("acquire after release should succeed")
	}
}

func TestExpiredLockIsStolen(t *testing.T) {
	tbl := NewTable(30 * time.Second)
	base := time.Now()
	tbl.now = func() time.Time { return base }

	if !tbl.TryAcquire("k") {
		t.Fatal("first acquire should succeed")
	}

	tbl.now = func() time.Time { return base.Add(29 * time.Second) }
	if tbl.TryAcquire("k") {
		t.Error("lock should still be held before timeout")
	}

	tbl.now = func() time.Time { return base.Add(31 * time.Second) }
	if !tbl.TryAcquire("k") {
		t.Error("expired lock should be stolen")
	}
}

func TestAcquireWaits(t *testing.T) {
	tbl := NewTable(30 * time.Second)
	tbl.TryAcquire("k")

	done := make(chan error, 1)
	go func() {
		done <- tbl.Acquire(context.Background(), "k", 2*time.Second)
	}()

	time.Sleep(100 * time.Millisecond)
	tbl.Release("k")

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Acquire returned %v, want nil after release", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after release")
	}
}

func TestAcquireTimeout(t *testing.T) {
	tbl := NewTable(30 * time.Second)
	tbl.TryAcquire("k")

	err := tbl.Acquire(context.Background(), "k", 150*time.Millisecond)
	if err != ErrTimeout {
		t.Errorf("Acquire returned %v, want ErrTimeout", err)
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	tbl := NewTable(30 * time.Second)
	tbl.TryAcquire("k")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := tbl.Acquire(ctx, "k", 5*time.Second)
	if err != context.Canceled {
		t.Errorf("Acquire returned %v, want context.Canceled", err)
	}
}
