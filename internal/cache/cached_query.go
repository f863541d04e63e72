package cache

import "time"

// Flags records the AD (Authenticated Data) and DNSSEC-requested bits a
// cached query or record was stored with.
type Flags uint8

const (
	// FlagAD marks an entry as carrying authenticated (DNSSEC-validated)
	// data.
	FlagAD Flags = 1 << iota
	// FlagDNSSEC marks a CachedQuery as having been answered with the
	// requester's DO bit set, i.e. DNSSEC RRs are present among its
	// sections.
	FlagDNSSEC
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// SectionHashes holds the RR-cache keys for one response, grouped by
// section. A nil slice means the section was absent from the response.
type SectionHashes struct {
	Answers     []Hash
	Authorities []Hash
	Additionals []Hash
}

// CachedQuery is the query-cache value: the hash list for each response
// section, plus the flags and time-to-death needed to judge a hit.
type CachedQuery struct {
	Sections SectionHashes
	Flags    Flags
	Added    time.Time
	TTD      uint32 // seconds
}

// NewCachedQuery starts an empty CachedQuery for a response carrying the
// given AD and DNSSEC-requested flags, cacheable for ttd seconds.
func NewCachedQuery(ad, dnssec bool, ttd uint32) *CachedQuery {
	var flags Flags
	if ad {
		flags |= FlagAD
	}
	if dnssec {
		flags |= FlagDNSSEC
	}
	return &CachedQuery{Flags: flags, Added: time.Now(), TTD: ttd}
}

// Stale reports whether the entry's time-to-death has elapsed as of now.
func (q *CachedQuery) Stale(now time.Time) bool {
	return uint32(now.Sub(q.Added).Seconds()) >= q.TTD
}
