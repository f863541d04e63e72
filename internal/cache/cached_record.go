package cache

import (
	"time"

	"github.com/jroosing/odns/internal/dns"
)

// CachedRecord is the rr-cache value: enough of a resource record's wire
// form to reconstruct it with an age-adjusted TTL, plus the AD flag it was
// stored with.
type CachedRecord struct {
	QName  string
	RRType dns.RecordType
	Class  uint16
	TTL    uint32
	Flags  Flags
	Added  time.Time
	RData  []byte // canonical marshaled RDATA, from Record.MarshalRData
}

// NewCachedRecord captures rr's wire form for caching. ad marks whether the
// response it came from carried authenticated data.
func NewCachedRecord(rr dns.Record, ad bool) (*CachedRecord, error) {
	rdata, err := rr.MarshalRData()
	if err != nil {
		return nil, err
	}
	h := rr.Header()
	var flags Flags
	if ad {
		flags |= FlagAD
	}
	return &CachedRecord{
		QName:  h.Name,
		RRType: rr.Type(),
		Class:  h.Class,
		TTL:    h.TTL,
		Flags:  flags,
		Added:  time.Now(),
		RData:  rdata,
	}, nil
}

// Hash computes the RR-cache key this record is stored under.
func (c *CachedRecord) Hash() Hash {
	return RRHash(c.QName, c.RRType, c.Class, c.RData)
}

// ToRecord rebuilds the dns.Record this entry represents, with its TTL
// reduced by the time elapsed since it was cached (floored at zero).
func (c *CachedRecord) ToRecord(now time.Time) (dns.Record, error) {
	elapsed := uint32(now.Sub(c.Added).Seconds())
	ttl := c.TTL
	if elapsed >= ttl {
		ttl = 0
	} else {
		ttl -= elapsed
	}
	header := dns.RRHeader{Name: c.QName, Class: c.Class, TTL: ttl}

	off := 0
	var rec dns.Record
	var err error
	switch c.RRType {
	case dns.TypeA, dns.TypeAAAA:
		rec, err = dns.ParseIPRData(c.RData, &off, len(c.RData))
	case dns.TypeCNAME, dns.TypeNS, dns.TypePTR:
		rec, err = dns.ParseNameRData(c.RData, &off, 0, len(c.RData), c.RRType)
	default:
		rec, err = dns.ParseOpaqueRData(c.RData, &off, len(c.RData), c.RRType)
	}
	if err != nil {
		return nil, err
	}
	rec.SetHeader(header)
	return rec, nil
}
