// Package fingerprint derives stable identity keys for findings.
//
// Identical semantic findings across runs must collapse to the same key
// regardless of finding-list ordering, letter case, or surrounding
// whitespace, so keys are computed over normalized inputs only.
package fingerprint

import (
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
)

// Fold normalizes one key component: surrounding whitespace is trimmed and
// the result is lowercased.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Composite returns the normalized asset|category|title tuple that a key
// digests. Useful for debugging and for human-readable diff keys.
func Composite(asset, category, title string) string {
	return Fold(asset) + "|" + Fold(category) + "|" + Fold(title)
}

// Key maps a finding's identity tuple to a stable 16-hex-char key.
// Pure and total: never fails, performs no I/O.
func Key(asset, category, title string) string {
	sum := xxhash.Sum64String(Composite(asset, category, title))
	var buf [16]byte
	const hex = "0123456789abcdef"
	for i := 15; i >= 0; i-- {
		buf[i] = hex[sum&0xF]
		sum >>= 4
	}
	return string(buf[:])
}
