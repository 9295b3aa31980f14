package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// StableID derives a deterministic identifier from an ordered set of parts.
// The same parts always map to the same ID, which is what lets re-derived
// records (gaps, cache keys) supersede their prior versions instead of
// accumulating duplicates.
func StableID(parts ...string) string {
	return HashString(strings.Join(parts, "|"))
}
