package cache

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/odns/internal/dns"
)

func aRecord(t *testing.T, name string, ttl uint32, ip string) dns.Record {
	t.Helper()
	parsed := net.ParseIP(ip)
	require.NotNil(t, parsed)
	return dns.NewIPRecord(dns.NewRRHeader(name, dns.ClassIN, ttl), parsed)
}

func TestCache_StoreAndLookup_Hit(t *testing.T) {
	c := NewCache(10)
	q := dns.Question{Name: "example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	rr := aRecord(t, "example.com", 300, "93.184.216.34")

	err := c.Store(q, []dns.Record{rr}, nil, nil, false, false, 300)
	require.NoError(t, err)

	result, ok := c.Lookup(q, false)
	require.True(t, ok)
	require.Len(t, result.Answers, 1)
	assert.Equal(t, "example.com", result.Answers[0].Header().Name)
	assert.False(t, result.AD)
}

func TestCache_Lookup_MissWhenAbsent(t *testing.T) {
	c := NewCache(10)
	q := dns.Question{Name: "nowhere.test", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	_, ok := c.Lookup(q, false)
	assert.False(t, ok)
}

func TestCache_Lookup_StaleIsMissButNotDeleted(t *testing.T) {
	c := NewCache(10)
	q := dns.Question{Name: "stale.test", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	rr := aRecord(t, "stale.test", 300, "1.2.3.4")
	require.NoError(t, c.Store(q, []dns.Record{rr}, nil, nil, false, false, 300))

	qHash := QueryHash(q.Name, q.Type, q.Class)
	c.queryData[qHash].Added = time.Now().Add(-time.Hour)
	c.queryData[qHash].TTD = 1

	_, ok := c.Lookup(q, false)
	assert.False(t, ok, "stale entry must be treated as a miss")

	// The entry itself is still present in the map: staleness is checked
	// lazily, not swept in the background.
	_, stillPresent := c.queryData[qHash]
	assert.True(t, stillPresent)
}

func TestCache_Lookup_DNSSECGating(t *testing.T) {
	c := NewCache(10)
	q := dns.Question{Name: "plain.test", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	rr := aRecord(t, "plain.test", 300, "1.2.3.4")
	// Stored without the DNSSEC flag (requester didn't set DO).
	require.NoError(t, c.Store(q, []dns.Record{rr}, nil, nil, false, false, 300))

	_, ok := c.Lookup(q, true)
	assert.False(t, ok, "a DO=1 requester must miss a query cached without DNSSEC data")

	_, ok = c.Lookup(q, false)
	assert.True(t, ok)
}

func TestCache_Lookup_ADGatingMissesOnUnauthenticatedRR(t *testing.T) {
	c := NewCache(10)
	q := dns.Question{Name: "ad.test", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	rr := aRecord(t, "ad.test", 300, "1.2.3.4")

	// Store the query as AD, but the RR itself without the AD flag — this
	// should never happen via Store's own wiring (ad is threaded through
	// uniformly) but Lookup must still treat a mismatched RR as a miss
	// rather than serve a partially-authenticated answer.
	require.NoError(t, c.Store(q, []dns.Record{rr}, nil, nil, true, false, 300))
	h := RRHash("ad.test", dns.TypeA, uint16(dns.ClassIN), mustRData(t, rr))
	c.rrData[h].Flags = 0

	_, ok := c.Lookup(q, false)
	assert.False(t, ok)
}

func TestCache_Eviction_OldestQueryDropsAtCapacity(t *testing.T) {
	c := NewCache(2)
	mk := func(name string) dns.Question {
		return dns.Question{Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	}
	for i, name := range []string{"a.test", "b.test", "c.test"} {
		rr := aRecord(t, name, 300, "1.1.1.1")
		require.NoError(t, c.Store(mk(name), []dns.Record{rr}, nil, nil, false, false, 300))
		_ = i
	}

	_, ok := c.Lookup(mk("a.test"), false)
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Lookup(mk("c.test"), false)
	assert.True(t, ok)
}

func TestCache_Store_SkipsBelowMinimumTTL(t *testing.T) {
	c := NewCache(10)
	q := dns.Question{Name: "short.test", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	rr := aRecord(t, "short.test", 5, "1.1.1.1")
	require.NoError(t, c.Store(q, []dns.Record{rr}, nil, nil, false, false, 5))

	_, ok := c.Lookup(q, false)
	assert.False(t, ok)
}

func TestCacheFor(t *testing.T) {
	assert.Equal(t, uint32(120), CacheFor(dns.RCodeNoError, true, 120))
	assert.Equal(t, uint32(300), CacheFor(dns.RCodeNoError, false, 0))
	assert.Equal(t, uint32(60), CacheFor(dns.RCodeNXDomain, false, 0))
	assert.Equal(t, uint32(30), CacheFor(dns.RCodeServFail, false, 0))
	assert.Equal(t, uint32(0), CacheFor(dns.RCodeFormErr, false, 0))
}

func mustRData(t *testing.T, rr dns.Record) []byte {
	t.Helper()
	b, err := rr.MarshalRData()
	require.NoError(t, err)
	return b
}
