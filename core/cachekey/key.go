// Package cachekey derives the stable, order-independent cache key used to
// address entries in core/tieredcache. Two requests for the same endpoint
// with the same parameters must hash identically regardless of parameter
// order; parameters that carry credentials must never affect the hash.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// sensitiveParams lists parameter names excluded from key derivation because
// they carry credentials rather than request shape. Matching is
// case-insensitive.
var sensitiveParams = map[string]struct{}{
	"api_key": {},
	"apikey":  {},
	"key":     {},
	"token":   {},
	"secret":  {},
	"auth":    {},
}

// Derive returns the stable cache key for endpoint with the given params.
// Params are sorted by name before hashing so that argument order never
// affects the result, and any sensitive parameter is dropped entirely before
// hashing so that rotating a credential does not fragment the cache.
func Derive(endpoint string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		if isSensitive(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(endpoint)
	for _, name := range names {
		b.WriteByte('\x00')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func isSensitive(name string) bool {
	_, ok := sensitiveParams[strings.ToLower(name)]
	return ok
}
