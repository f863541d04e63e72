package accesslist

import (
	"regexp"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// denylistBloomCapacity sizes the fast-reject filter for the "millions of
// entries" case described for the denylist; false positives just fall
// through to the exact map check, so oversizing costs memory, not
// correctness.
const denylistBloomCapacity = 2_000_000

const denylistBloomFalsePositiveRate = 0.01

type regexEntry struct {
	id uint32
	re *regexp.Regexp
}

// Denylist is the exact/wildcard/regex membership test a query's qname is
// checked against before anything else. Reads are expected to vastly
// outnumber writes, so a single RWMutex guards the whole structure.
type Denylist struct {
	mu      sync.RWMutex
	entries map[Hash]struct{}
	filter  *bloom.BloomFilter
	regexes []regexEntry
}

// NewDenylist creates an empty denylist with a bloom filter pre-check sized
// for large deny sets.
func NewDenylist() *Denylist {
	return &Denylist{
		entries: make(map[Hash]struct{}),
		filter:  bloom.NewWithEstimates(denylistBloomCapacity, denylistBloomFalsePositiveRate),
	}
}

// AddEntry registers a domain hash (from HashDomain or HashWildcard) as
// denied.
func (d *Denylist) AddEntry(h Hash) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[h] = struct{}{}
	d.filter.Add(h[:])
}

// RemoveEntry undoes AddEntry. The bloom filter is never shrunk — a removed
// hash may still test positive there, but the exact map check that follows
// will correctly report it as absent.
func (d *Denylist) RemoveEntry(h Hash) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, h)
}

// AddRegex appends a compiled regex under id. Regexes are tested in
// insertion order, so callers relying on first-match-wins ordering must add
// them in the order they should be evaluated.
func (d *Denylist) AddRegex(id uint32, re *regexp.Regexp) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regexes = append(d.regexes, regexEntry{id: id, re: re})
}

// RemoveRegex deletes the regex registered under id, preserving the
// relative order of the remaining entries.
func (d *Denylist) RemoveRegex(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.regexes[:0]
	for _, e := range d.regexes {
		if e.id != id {
			out = append(out, e)
		}
	}
	d.regexes = out
}

// Contains reports whether qname is denied: an exact hash match, a wildcard
// match against one of qname's parent suffixes, or a regex match, in that
// order.
func (d *Denylist) Contains(qname string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.probablyContains(HashDomain(qname)) {
		return true
	}

	for _, suffix := range wildcardSuffixes(qname) {
		if d.probablyContains(HashWildcard(suffix)) {
			return true
		}
	}

	for _, e := range d.regexes {
		if e.re.MatchString(qname) {
			return true
		}
	}
	return false
}

// probablyContains is the bloom-gated exact lookup. Callers must hold at
// least a read lock.
func (d *Denylist) probablyContains(h Hash) bool {
	if !d.filter.Test(h[:]) {
		return false
	}
	_, ok := d.entries[h]
	return ok
}
