// Package hash computes the canonical request digest that binds a payment
// challenge to the exact request that produced it.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Request computes the canonical SHA-256 digest of an HTTP request as
// lowercase hex. The digest covers method, path, canonical query, and raw
// body bytes only — never headers, clocks, or randomness — so the same
// logical request always hashes the same way regardless of transport.
func Request(method, path, rawQuery string, body []byte) string {
	method = strings.ToUpper(method)
	query := CanonicalQuery(rawQuery)

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte("\n"))
	h.Write([]byte(path))
	h.Write([]byte("\n"))
	h.Write([]byte(query))
	h.Write([]byte("\n"))
	h.Write(body)

	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalQuery parses a raw query string (without the leading '?') into
// its (key, value) pairs, sorts them lexicographically by key, and
// re-encodes them using standard URI component percent-encoding (space
// becomes %20, never '+'). The result is stable across any reordering of
// the original query parameters.
func CanonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := splitQuery(rawQuery)
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i][0] < pairs[j][0]
	})

	parts := make([]string, len(pairs))
	for i, kv := range pairs {
		parts[i] = encodeComponent(kv[0]) + "=" + encodeComponent(kv[1])
	}
	return strings.Join(parts, "&")
}

// splitQuery parses "a=1&b=2" into [["a","1"],["b","2"]], decoding
// percent-escapes and '+' in the raw query the way a URL query string is
// conventionally interpreted, without relying on net/url's own ordering.
func splitQuery(rawQuery string) [][2]string {
	var pairs [][2]string
	for _, piece := range strings.Split(rawQuery, "&") {
		if piece == "" {
			continue
		}
		var key, value string
		if idx := strings.IndexByte(piece, '='); idx >= 0 {
			key, value = piece[:idx], piece[idx+1:]
		} else {
			key = piece
		}
		key, _ = url.QueryUnescape(key)
		value, _ = url.QueryUnescape(value)
		pairs = append(pairs, [2]string{key, value})
	}
	return pairs
}

// encodeComponent percent-encodes a string the way url.QueryEscape does,
// except it represents a literal space as %20 instead of '+', matching the
// RFC 3986 component-encoding rules rather than application/x-www-form-urlencoded.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
