package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "m1@store", "m2@store")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			release(ctx)
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "k", "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// "a" is taken first and must be released by the failed attempt.
	r2, err := l.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	r2(context.Background())
}

func TestLocalLockerReleaseIsIdempotent(t *testing.T) {
	l := NewLocalLocker()
	release, _ := l.Acquire(context.Background(), "k", "k")
	release(context.Background())
	release(context.Background())

	r, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	r(context.Background())
}
