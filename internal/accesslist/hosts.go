package accesslist

import (
	"fmt"
	"net"
	"sync"

	"github.com/jroosing/odns/internal/dns"
)

// Entry is a single stored record under a hosts-list hash: either an A/AAAA
// address or a CNAME target.
type Entry struct {
	Type   dns.RecordType
	Addr   net.IP // set for TypeA / TypeAAAA
	Target string // set for TypeCNAME
}

// ErrUnsupportedKind is returned by HostsList.Add for any record type other
// than A, AAAA, or CNAME.
var ErrUnsupportedKind = fmt.Errorf("only A/AAAA/CNAME records are supported in the hosts list")

// HostsList is the local allowlist: domain hash -> ordered list of stored
// records. A qname with entries here answers authoritatively without
// touching the cache or upstream.
type HostsList struct {
	mu  sync.RWMutex
	all map[Hash][]Entry
}

// NewHostsList creates an empty hosts list.
func NewHostsList() *HostsList {
	return &HostsList{all: make(map[Hash][]Entry)}
}

// Add appends entry under qnameHash, preserving insertion order among
// records sharing the same hash. Only A, AAAA, and CNAME entries are
// admissible.
func (l *HostsList) Add(qnameHash Hash, entry Entry) error {
	switch entry.Type {
	case dns.TypeA, dns.TypeAAAA, dns.TypeCNAME:
	default:
		return ErrUnsupportedKind
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.all[qnameHash] = append(l.all[qnameHash], entry)
	return nil
}

// Remove deletes every stored record of qtype under qnameHash.
func (l *HostsList) Remove(qnameHash Hash, qtype dns.RecordType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	records, ok := l.all[qnameHash]
	if !ok {
		return
	}
	kept := records[:0]
	for _, e := range records {
		if e.Type != qtype {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(l.all, qnameHash)
		return
	}
	l.all[qnameHash] = kept
}

// Lookup returns the records stored for qname, trying an exact match first
// and falling back to a wildcard match against qname's parent suffixes. The
// returned slice must not be mutated by the caller.
func (l *HostsList) Lookup(qname string) ([]Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if records, ok := l.all[HashDomain(qname)]; ok {
		return records, true
	}
	for _, suffix := range wildcardSuffixes(qname) {
		if records, ok := l.all[HashWildcard(suffix)]; ok {
			return records, true
		}
	}
	return nil, false
}
