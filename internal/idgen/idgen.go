// Package idgen generates deterministic, prefix-scoped, collision-
// checked identifiers of the form "<prefix>-<base36hash>@<8hex>".
//
// The hashing scheme (base36 alphabet, byte-width-per-length table) is
// adapted from the teacher's hash-ID generator; the "@<8hex>" display
// suffix and the retry-against-the-live-store collision policy are
// this spec's own addition (spec §4.4/§6).
package idgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dotwork/issuegraph/internal/types"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// hashLen is the number of base36 characters in the primary hash
// segment. short is always 8 hex characters (spec §4.4/§6).
const hashLen = 12

// counter is a monotonic, process-local tie-breaker mixed into the
// hash input so two IDs minted in the same nanosecond still differ.
var counter uint64

// EncodeBase36 converts data to a base36 string of exactly length
// characters, left-padding with zeros or truncating to the least
// significant digits as needed.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}
	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}
	str := string(chars)
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// generate builds one candidate id for prefix, mixing a monotonic
// counter, a random UUID, and the current time into the hash input so
// retries after a collision produce a different candidate.
func generate(prefix string) (types.ID, error) {
	n := atomic.AddUint64(&counter, 1)
	content := fmt.Sprintf("%s|%d|%s|%d", prefix, n, uuid.NewString(), time.Now().UnixNano())
	sum := sha256.Sum256([]byte(content))

	hash := EncodeBase36(sum[:8], hashLen)
	short := hex.EncodeToString(sum[8:12])

	id := fmt.Sprintf("%s-%s@%s", prefix, hash, short)
	if len(id) > types.MaxIDLength {
		return "", fmt.Errorf("generated id %q exceeds %d characters", id, types.MaxIDLength)
	}
	return types.ID(id), nil
}

// Exists is implemented by a store lookup used to detect collisions.
type Exists func(ctx context.Context, id types.ID) (bool, error)

// MaxRetries bounds collision retries before IdGenerationError.
const MaxRetries = 8

// Generate produces a fresh, collision-checked ID for prefix. It
// retries with exponential backoff (bounded, no sleeping on the final
// attempt) against exists until MaxRetries is exhausted.
func Generate(ctx context.Context, prefix string, exists Exists) (types.ID, error) {
	if prefix == "" {
		return "", fmt.Errorf("idgen: empty prefix")
	}

	var last types.ID
	attempts := 0
	op := func() error {
		attempts++
		candidate, err := generate(prefix)
		if err != nil {
			return err
		}
		collided, err := exists(ctx, candidate)
		if err != nil {
			return backoff.Permanent(err)
		}
		if collided {
			return fmt.Errorf("collision")
		}
		last = candidate
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxRetries)
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if attempts >= MaxRetries {
			return "", &types.IdGenerationError{Prefix: prefix, Retries: attempts}
		}
		return "", err
	}
	return last, nil
}
