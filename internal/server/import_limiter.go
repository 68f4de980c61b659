package server

// import_limiter.go bounds how many imports are processed at once.
//
// Each import reads the whole upload into memory, hashes it and writes it to
// disk, so an unbounded number of parallel imports can exhaust memory under
// load. The limiter is a semaphore: when every slot is taken, a request waits
// up to maxWait for one to free and then fails with errTooManyImports.
// Shutdown drains the limiter so in-flight imports finish before the process
// exits.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var errTooManyImports = errors.New("too many concurrent imports, please try again later")

type importLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// newImportLimiter creates a limiter allowing at most maxConcurrent imports
// at once. A request that cannot take a slot within maxWait fails with
// errTooManyImports.
func newImportLimiter(maxConcurrent int, maxWait time.Duration) *importLimiter {
	return &importLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// acquire takes an import slot, waiting up to maxWait for one to free.
// The caller must call release when the import completes (use defer).
func (l *importLimiter) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errTooManyImports
	}
}

// release frees a previously acquired slot. Must be called exactly once per
// successful acquire.
func (l *importLimiter) release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// activeCount returns the number of imports currently in flight.
func (l *importLimiter) activeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// available returns the number of free slots.
func (l *importLimiter) available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// waitForDrain blocks until every in-flight import completes or the context
// is cancelled. Used during graceful shutdown.
func (l *importLimiter) waitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.activeCount() == 0 {
				return nil
			}
		}
	}
}
