// Package shortcode turns free-form user input into URL-safe short codes
// and generates random ones.  Nothing here touches storage; uniqueness is
// the caller's concern.
package shortcode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// DefaultLength is the length of a fully random code.
	DefaultLength = 6
	// SuffixLength is the length of the random tail appended on collision.
	SuffixLength = 3
	// MaxLength bounds every stored code.
	MaxLength = 64
)

const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const lowerAlnum = "0123456789abcdefghijklmnopqrstuvwxyz"

// Sanitize lowercases and trims candidate, replaces every character outside
// [a-z0-9-] with a dash, collapses dash runs and strips dashes at both
// ends.  The result is at most MaxLength bytes.  An empty result means the
// caller has to fall back to a random code.
func Sanitize(candidate string) string {
	s := strings.ToLower(strings.TrimSpace(candidate))
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > MaxLength {
		out = strings.TrimRight(out[:MaxLength], "-")
	}
	return out
}

// Random returns a code of length n drawn uniformly from the 62 symbol
// alphanumeric alphabet.
func Random(n int) (string, error) {
	return fromAlphabet(base62, n)
}

// RandomLower returns a code of length n drawn uniformly from [a-z0-9],
// the stored code charset.
func RandomLower(n int) (string, error) {
	return fromAlphabet(lowerAlnum, n)
}

// Suffix returns a lowercase alphanumeric tail of SuffixLength characters
// suitable for appending to an already sanitized base.
func Suffix() (string, error) {
	return fromAlphabet(lowerAlnum, SuffixLength)
}

// WithSuffix joins base and tail with a dash, shortening base so the
// whole code stays within MaxLength.
func WithSuffix(base, tail string) string {
	limit := MaxLength - len(tail) - 1
	if len(base) > limit {
		base = strings.TrimRight(base[:limit], "-")
	}
	return base + "-" + tail
}

func fromAlphabet(alphabet string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[num.Int64()]
	}
	return string(out), nil
}
