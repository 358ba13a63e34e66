// Package keyderive implements key confirmation (§4.3) and key derivation
// from a pre-key into a (cipher key, MAC key) working-key pair.
package keyderive

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"

	obscurerr "obscurcore/internal/errors"
	"obscurcore/internal/zero"
)

// ConfirmationFunc computes the keyed confirmation output for a candidate.
// Implementations are constant time relative to the candidate's size.
type ConfirmationFunc func(candidate []byte) ([]byte, error)

// NewConfirmationFunc builds a ConfirmationFunc for the named registry
// confirmation scheme (presently "Blake2B-256" and "Hmac-Sha256", both
// keyed by the candidate itself against a fixed domain-separation label —
// the same shape the teacher's subkey derivation uses a fixed label for).
func NewConfirmationFunc(schemeName string) (ConfirmationFunc, error) {
	label := []byte("obscurcore-key-confirmation")
	switch schemeName {
	case "Blake2B-256":
		return func(candidate []byte) ([]byte, error) {
			h, err := blake2b.New256(candidate)
			if err != nil {
				return nil, obscurerr.NewCryptoError("key-confirmation", err)
			}
			h.Write(label)
			return h.Sum(nil), nil
		}, nil
	case "Hmac-Sha256":
		return func(candidate []byte) ([]byte, error) {
			h := newHMACSHA256(candidate)
			h.Write(label)
			return h.Sum(nil), nil
		}, nil
	default:
		return nil, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "key confirmation scheme "+schemeName)
	}
}

func newHMACSHA256(key []byte) hash.Hash {
	return hmac.New(sha256.New, key)
}

// Confirm runs fn over every candidate and compares the result against
// verifiedOutput in constant time, returning the index of the first match
// or -1 if none matched. Candidates are searched with bounded parallelism;
// the only shared mutable state across workers is a single atomic
// "found" flag, set by the winner after it publishes its result, per the
// concurrency model's single-shared-flag rule.
func Confirm(candidates [][]byte, verifiedOutput []byte, fn ConfirmationFunc) (int, error) {
	if len(candidates) == 0 {
		return -1, nil
	}

	type result struct {
		idx int
		ok  bool
		err error
	}

	var found int32
	results := make([]result, len(candidates))
	var wg sync.WaitGroup

	const maxWorkers = 8
	sem := make(chan struct{}, maxWorkers)

	for i, cand := range candidates {
		if atomic.LoadInt32(&found) != 0 {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cand []byte) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := fn(cand)
			if err != nil {
				results[i] = result{idx: i, err: err}
				return
			}
			ok := zero.ConstantTimeEqual(out, verifiedOutput)
			zero.Bytes(out)
			results[i] = result{idx: i, ok: ok}
			if ok {
				atomic.StoreInt32(&found, 1)
			}
		}(i, cand)
	}
	wg.Wait()

	var firstErr error
	winner := -1
	for _, r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		if r.ok && (winner == -1 || r.idx < winner) {
			winner = r.idx
		}
	}
	if winner == -1 && firstErr != nil {
		return -1, firstErr
	}
	return winner, nil
}
