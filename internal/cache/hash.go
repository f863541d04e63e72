// Package cache implements the two-tier response cache: a query-fingerprint
// cache (qname, qtype, qclass) -> section record lists, and a record cache
// (qname, qtype, class, rdata) -> the record body itself.
package cache

import (
	"crypto/sha1"
	"encoding/binary"
	"strings"

	"github.com/jroosing/odns/internal/dns"
)

// Hash is a 128-bit fingerprint: the first 16 bytes of a SHA-1 digest.
type Hash [16]byte

// QueryHash fingerprints a question by (qname, qtype, qclass). Two questions
// that differ only by qname casing hash identically.
func QueryHash(qname string, qtype, qclass uint16) Hash {
	h := sha1.New()
	h.Write([]byte(strings.ToLower(qname)))
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], qtype)
	binary.BigEndian.PutUint16(buf[2:4], qclass)
	h.Write(buf[:])
	return truncate(h.Sum(nil))
}

// RRHash fingerprints a resource record by (qname, qtype, class, rdata).
// rdata must be the record's canonical marshaled RDATA bytes.
func RRHash(qname string, qtype dns.RecordType, class uint16, rdata []byte) Hash {
	h := sha1.New()
	h.Write([]byte(strings.ToLower(qname)))
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(qtype))
	binary.BigEndian.PutUint16(buf[2:4], class)
	h.Write(buf[:])
	h.Write(rdata)
	return truncate(h.Sum(nil))
}

func truncate(sum []byte) Hash {
	var out Hash
	copy(out[:], sum[:16])
	return out
}
