// Package auth holds the credential primitives: bcrypt hashing, the bounded
// password history, and the signed session and reset tokens.
package auth

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const (
	// BcryptCost is the work factor for every stored password hash.
	BcryptCost = 10
	// HistorySize is how many hashes a user's password history retains,
	// the current one included.
	HistorySize = 3
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword reports whether password matches hash. Malformed hashes
// count as a mismatch.
func ComparePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PushHistory returns a new history with hash at the front, keeping at most
// HistorySize entries (most recent first). The input slice is not modified.
func PushHistory(history []string, hash string) []string {
	next := make([]string, 0, HistorySize)
	next = append(next, hash)
	for _, h := range history {
		if len(next) == HistorySize {
			break
		}
		next = append(next, h)
	}
	return next
}

// IsReused reports whether candidate matches any hash in history. The bcrypt
// comparisons run concurrently; the first match cancels the rest.
func IsReused(ctx context.Context, history []string, candidate string) (bool, error) {
	if len(history) == 0 {
		return false, nil
	}

	var matched atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, hash := range history {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Mismatches and corrupt entries both count as "not reused".
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil {
				matched.Store(true)
				return errMatched
			}
			return nil
		})
	}

	err := g.Wait()
	if matched.Load() {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

var errMatched = errors.New("password matched history entry")
