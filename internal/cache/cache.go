package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/jroosing/odns/internal/dns"
)

// DefaultCapacity is the initial capacity reserved for each of the two
// maps a Cache holds.
const DefaultCapacity = 1000

// minCacheTTL is the shortest cache_for a response may carry and still be
// worth storing.
const minCacheTTL = 15

// Cache is the two-tier response cache: a query-fingerprint cache mapping
// (qname, qtype, qclass) to the RR-cache keys that answer it, and an
// RR cache mapping (qname, qtype, class, rdata) to the record body. Both
// maps preserve insertion order so that a future LRU-style eviction policy
// has the ordering it needs; v1 only evicts the oldest entry when a map is
// at capacity and a new key is inserted.
//
// There is no background expiry sweep: a stale entry is detected at lookup
// time and treated as a miss, but it is not removed — it stays until it is
// overwritten by a fresh insert under the same key or evicted for capacity.
type Cache struct {
	mu sync.RWMutex

	queryOrder *list.List
	queryElems map[Hash]*list.Element
	queryData  map[Hash]*CachedQuery
	queryCap   int

	rrOrder *list.List
	rrElems map[Hash]*list.Element
	rrData  map[Hash]*CachedRecord
	rrCap   int
}

// NewCache creates a Cache whose two maps each hold up to capacity entries.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		queryOrder: list.New(),
		queryElems: make(map[Hash]*list.Element, capacity),
		queryData:  make(map[Hash]*CachedQuery, capacity),
		queryCap:   capacity,

		rrOrder: list.New(),
		rrElems: make(map[Hash]*list.Element, capacity),
		rrData:  make(map[Hash]*CachedRecord, capacity),
		rrCap:   capacity,
	}
}

// CacheFor computes the duration (seconds) a response is cacheable for,
// given its response code and the minimum non-OPT RR TTL across its
// sections (minRRTTL, only meaningful when hasRR is true).
func CacheFor(rcode dns.RCode, hasRR bool, minRRTTL uint32) uint32 {
	switch rcode {
	case dns.RCodeNoError:
		if hasRR {
			return minRRTTL
		}
		return 300
	case dns.RCodeRefused, dns.RCodeNXDomain:
		return 60
	case dns.RCodeServFail:
		return 30
	case dns.RCodeNotImp:
		return 300
	default: // FormatError, Unknown
		return 0
	}
}

// Store inserts a response into the cache under the fingerprint of
// question, provided cacheFor is at least 15 seconds. answers,
// authorities, and additionals are the response's non-OPT records; ad and
// dnssec are the response's AD bit and whether it carried a DNSSEC OPT
// (DO=1). Responses with cacheFor < 15 are silently skipped, per policy.
func (c *Cache) Store(question dns.Question, answers, authorities, additionals []dns.Record, ad, dnssec bool, cacheFor uint32) error {
	if cacheFor < minCacheTTL {
		return nil
	}

	cq := NewCachedQuery(ad, dnssec, cacheFor)

	sections := []struct {
		records []dns.Record
		hashes  *[]Hash
	}{
		{answers, &cq.Sections.Answers},
		{authorities, &cq.Sections.Authorities},
		{additionals, &cq.Sections.Additionals},
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sec := range sections {
		for _, rr := range sec.records {
			if rr.Type() == dns.TypeOPT {
				continue
			}
			cr, err := NewCachedRecord(rr, ad)
			if err != nil {
				return fmt.Errorf("caching record for %q: %w", question.Name, err)
			}
			h := cr.Hash()
			*sec.hashes = append(*sec.hashes, h)
			c.rrInsert(h, cr)
		}
	}

	qHash := QueryHash(question.Name, question.Type, question.Class)
	c.queryInsert(qHash, cq)
	return nil
}

// LookupResult is the outcome of a cache hit: the reconstructed records for
// each section, and the AD bit the response header should carry.
type LookupResult struct {
	Answers     []dns.Record
	Authorities []dns.Record
	Additionals []dns.Record
	AD          bool
}

// Lookup attempts to answer question from the cache. dnssec is whether the
// requester set the DO bit. It returns (result, true) on a hit, or
// (LookupResult{}, false) on a miss — including a stale entry, an entry
// missing DNSSEC data the requester needs, or an RR that's gone missing
// from the RR cache (a missing dependency is a miss, not a partial
// answer).
func (c *Cache) Lookup(question dns.Question, dnssec bool) (LookupResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	qHash := QueryHash(question.Name, question.Type, question.Class)
	cq, ok := c.queryData[qHash]
	if !ok {
		return LookupResult{}, false
	}

	now := time.Now()
	if cq.Stale(now) {
		return LookupResult{}, false
	}
	if dnssec && !cq.Flags.Has(FlagDNSSEC) {
		return LookupResult{}, false
	}

	requireAD := cq.Flags.Has(FlagAD)
	includeDNSSEC := dnssec || dns.IsDNSSECType(dns.RecordType(question.Type))

	result := LookupResult{AD: requireAD}
	sections := []struct {
		hashes []Hash
		out    *[]dns.Record
	}{
		{cq.Sections.Answers, &result.Answers},
		{cq.Sections.Authorities, &result.Authorities},
		{cq.Sections.Additionals, &result.Additionals},
	}

	for _, sec := range sections {
		for _, h := range sec.hashes {
			cr, ok := c.rrData[h]
			if !ok {
				return LookupResult{}, false
			}
			if !includeDNSSEC && dns.IsDNSSECType(cr.RRType) {
				continue
			}
			if requireAD && !cr.Flags.Has(FlagAD) {
				return LookupResult{}, false
			}
			rec, err := cr.ToRecord(now)
			if err != nil {
				return LookupResult{}, false
			}
			*sec.out = append(*sec.out, rec)
		}
	}

	return result, true
}

func (c *Cache) queryInsert(h Hash, v *CachedQuery) {
	if elem, ok := c.queryElems[h]; ok {
		c.queryOrder.Remove(elem)
	}
	c.queryElems[h] = c.queryOrder.PushBack(h)
	c.queryData[h] = v
	for c.queryOrder.Len() > c.queryCap {
		c.evictOldestQuery()
	}
}

func (c *Cache) evictOldestQuery() {
	front := c.queryOrder.Front()
	if front == nil {
		return
	}
	h := front.Value.(Hash)
	c.queryOrder.Remove(front)
	delete(c.queryElems, h)
	delete(c.queryData, h)
}

func (c *Cache) rrInsert(h Hash, v *CachedRecord) {
	if elem, ok := c.rrElems[h]; ok {
		c.rrOrder.Remove(elem)
	}
	c.rrElems[h] = c.rrOrder.PushBack(h)
	c.rrData[h] = v
	for c.rrOrder.Len() > c.rrCap {
		c.evictOldestRR()
	}
}

func (c *Cache) evictOldestRR() {
	front := c.rrOrder.Front()
	if front == nil {
		return
	}
	h := front.Value.(Hash)
	c.rrOrder.Remove(front)
	delete(c.rrElems, h)
	delete(c.rrData, h)
}
