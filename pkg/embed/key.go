// Package embed implements the embedding service: a deterministic
// cache key, a two-tier (memory LRU + disk TTL) cache, bounded-parallelism
// batch fetch against an external embedding provider, and the provider
// error classification feeding the shared error taxonomy.
package embed

import (
	"crypto/sha256"
	"encoding/hex"
)

// CacheKey returns the 64-character lowercase hex SHA-256 digest of the
// UTF-8 bytes of text — the deterministic key shared by both cache tiers.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
