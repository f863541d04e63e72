// Package accesslist implements the denylist and hosts (allowlist) access
// lists used to answer queries locally, before a query ever reaches the
// cache or an upstream resolver.
package accesslist

import (
	"crypto/sha1"
	"strings"
)

// Hash is a 128-bit domain fingerprint: the first 16 bytes of a SHA-1 digest.
// Using a fixed-size array (rather than a slice or string) makes Hash
// directly usable as a map key with no extra allocation.
type Hash [16]byte

// HashDomain hashes a lowercased qname with no prefix. Two different-cased
// spellings of the same domain always produce the same Hash.
func HashDomain(qname string) Hash {
	return hash(nil, qname)
}

// HashWildcard hashes a domain suffix the way a "*.suffix" entry is hashed:
// the literal bytes "*." followed by the lowercased suffix.
func HashWildcard(suffix string) Hash {
	return hash([]byte("*."), suffix)
}

func hash(prefix []byte, domain string) Hash {
	h := sha1.New()
	if len(prefix) > 0 {
		h.Write(prefix)
	}
	h.Write([]byte(strings.ToLower(domain)))
	sum := h.Sum(nil)
	var out Hash
	copy(out[:], sum[:16])
	return out
}

// wildcardSuffixes enumerates qname's parent suffixes, dropping one label at
// a time from the left and skipping empty labels (a leading or doubled dot).
// For "px.tracker.net" this yields ["tracker.net", "net"].
func wildcardSuffixes(qname string) []string {
	labels := strings.Split(qname, ".")
	suffixes := make([]string, 0, len(labels))
	for i := 1; i < len(labels); i++ {
		if labels[i] == "" {
			continue
		}
		suffixes = append(suffixes, strings.Join(labels[i:], "."))
	}
	return suffixes
}
