package lock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryBackend_MutualExclusion(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	const goroutines = 20
	var wg sync.WaitGroup
	acquired := make(chan string, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			token := "token-" + string(rune('a'+n))
			ok, err := backend.Acquire(ctx, "sync:acct1", token, time.Second)
			if err != nil {
				t.Errorf("unexpected acquire error: %v", err)
				return
			}
			if ok {
				acquired <- token
			}
		}(i)
	}
	wg.Wait()
	close(acquired)

	count := 0
	for range acquired {
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly 1 successful acquire, got %d", count)
	}
}

func TestMemoryBackend_ReleaseThenReacquire(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	ok, err := backend.Acquire(ctx, "k", "t1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}

	ok, _ = backend.Acquire(ctx, "k", "t2", time.Second)
	if ok {
		t.Fatal("expected second acquire to fail while held")
	}

	if err := backend.Release(ctx, "k", "t1"); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}

	ok, _ = backend.Acquire(ctx, "k", "t2", time.Second)
	if !ok {
		t.Fatal("expected acquire to succeed after release")
	}
}

func TestMemoryBackend_StaleTokenReleaseIsNoop(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	if ok, _ := backend.Acquire(ctx, "k", "owner", time.Second); !ok {
		t.Fatal("expected acquire to succeed")
	}

	// A caller presenting a token it no longer owns must not free the lock
	if err := backend.Release(ctx, "k", "stale"); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}

	if ok, _ := backend.Acquire(ctx, "k", "other", time.Second); ok {
		t.Fatal("expected lock to still be held after stale release")
	}
}
