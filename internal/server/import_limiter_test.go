package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestImportLimiter_AcquireRelease(t *testing.T) {
	limiter := newImportLimiter(2, time.Second)

	if got := limiter.activeCount(); got != 0 {
		t.Errorf("initial activeCount = %d, want 0", got)
	}
	if got := limiter.available(); got != 2 {
		t.Errorf("initial available = %d, want 2", got)
	}

	ctx := context.Background()
	if err := limiter.acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := limiter.acquire(ctx); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	if got := limiter.activeCount(); got != 2 {
		t.Errorf("activeCount = %d, want 2", got)
	}
	if got := limiter.available(); got != 0 {
		t.Errorf("available = %d, want 0", got)
	}

	limiter.release()
	limiter.release()

	if got := limiter.activeCount(); got != 0 {
		t.Errorf("after release, activeCount = %d, want 0", got)
	}
}

func TestImportLimiter_RejectsWhenFull(t *testing.T) {
	limiter := newImportLimiter(1, 100*time.Millisecond)

	ctx := context.Background()
	if err := limiter.acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer limiter.release()

	start := time.Now()
	err := limiter.acquire(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, errTooManyImports) {
		t.Errorf("expected errTooManyImports, got %v", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("rejected too fast: %v", elapsed)
	}
}

func TestImportLimiter_ContextCancelled(t *testing.T) {
	limiter := newImportLimiter(1, time.Minute)

	if err := limiter.acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer limiter.release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if err := limiter.acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestImportLimiter_NeverExceedsMax(t *testing.T) {
	const maxConcurrent = 3
	const totalRequests = 10

	limiter := newImportLimiter(maxConcurrent, time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := limiter.acquire(context.Background()); err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			defer limiter.release()

			mu.Lock()
			if current := limiter.activeCount(); current > maxObserved {
				maxObserved = current
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
		}()
	}
	wg.Wait()

	if maxObserved > maxConcurrent {
		t.Errorf("observed %d concurrent imports, limit is %d", maxObserved, maxConcurrent)
	}
	if got := limiter.activeCount(); got != 0 {
		t.Errorf("final activeCount = %d, want 0", got)
	}
}

func TestImportLimiter_WaitForDrain(t *testing.T) {
	limiter := newImportLimiter(2, time.Second)

	if err := limiter.acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	go func() {
		time.Sleep(150 * time.Millisecond)
		limiter.release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := limiter.waitForDrain(ctx); err != nil {
		t.Errorf("waitForDrain failed: %v", err)
	}
	if got := limiter.activeCount(); got != 0 {
		t.Errorf("activeCount after drain = %d, want 0", got)
	}
}
