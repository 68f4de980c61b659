// Package digest computes content hashes for uploaded data files.
//
// The hex SHA-256 digest is the natural key the data-sync API uses for
// duplicate detection, so it must depend only on file bytes, never on the
// filename or selection metadata.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Result is the outcome of an asynchronous digest computation.
type Result struct {
	Hex string
	Err error
}

// Sum returns the lowercase hex SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumReader hashes everything readable from r.
func SumReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read for hashing: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compute hashes data off the calling goroutine and delivers exactly one
// Result on the returned channel. If ctx is cancelled before the digest
// finishes, the Result carries ctx.Err() instead of a digest.
//
// Callers that may abandon a computation (e.g. the user picks a different
// file) must decide for themselves whether a late Result still applies;
// Compute itself has no notion of which selection it belongs to.
func Compute(ctx context.Context, data []byte) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		done := make(chan string, 1)
		go func() { done <- Sum(data) }()

		select {
		case hex := <-done:
			ch <- Result{Hex: hex}
		case <-ctx.Done():
			ch <- Result{Err: ctx.Err()}
		}
	}()
	return ch
}
