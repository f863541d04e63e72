package resolver

import (
	"context"

	"github.com/jroosing/odns/internal/cache"
	"github.com/jroosing/odns/internal/dns"
)

// resolveWithUpstream builds a fresh recursive query for question, forwards
// it to the configured upstream, and merges the answer into resp in place.
// It returns the cache_for duration computed from the upstream response (0
// if the response shouldn't be cached) and whether resp is eligible for
// caching at all (false only when there was no upstream configured or the
// upstream call failed outright).
func (r *Resolver) resolveWithUpstream(ctx context.Context, question dns.Question, id uint16, dnssec bool, resp *dns.Packet) (uint32, bool) {
	if r.upstream == nil {
		resp.Header.Flags |= uint16(dns.RCodeServFail)
		return 0, false
	}

	query := dns.Packet{
		Header: dns.Header{
			ID:      id,
			Flags:   dns.RDFlag | dns.ADFlag,
			QDCount: 1,
		},
		Questions: []dns.Question{question},
	}
	opt := dns.CreateOPT(serverEDNSUDPSize)
	opt.DNSSECOk = dnssec
	query.Additionals = append(query.Additionals, opt.ToRecord())
	query.Header.ARCount = 1

	queryBytes, err := query.Marshal()
	if err != nil {
		resp.Header.Flags |= uint16(dns.RCodeServFail)
		return 0, false
	}

	respBytes, err := r.upstream.Query(ctx, queryBytes, false)
	if err != nil {
		resp.Header.Flags |= uint16(dns.RCodeServFail)
		return 0, false
	}

	upstreamPacket, err := dns.ParsePacket(respBytes)
	if err != nil {
		resp.Header.Flags |= uint16(dns.RCodeServFail)
		return 0, false
	}

	resp.Answers = upstreamPacket.Answers
	resp.Authorities = upstreamPacket.Authorities
	for _, rr := range upstreamPacket.Additionals {
		if rr.Type() == dns.TypeOPT {
			continue
		}
		resp.Additionals = append(resp.Additionals, rr)
	}

	rcode := dns.RCode(upstreamPacket.Header.Flags & 0x0F)
	resp.Header.Flags = (resp.Header.Flags &^ 0x0F) | uint16(rcode)
	if upstreamPacket.Header.Flags&dns.ADFlag != 0 {
		resp.Header.Flags |= dns.ADFlag
	}
	if upstreamPacket.Header.Flags&dns.AAFlag != 0 {
		resp.Header.Flags |= dns.AAFlag
	}

	minTTL, hasRR := minimumTTL(upstreamPacket)
	cacheFor := cache.CacheFor(rcode, hasRR, minTTL)
	return cacheFor, true
}

// minimumTTL finds the lowest TTL across a response's sections, skipping
// OPT pseudo-records (which carry no real TTL).
func minimumTTL(p dns.Packet) (uint32, bool) {
	var (
		min   uint32
		found bool
	)
	for _, sec := range [][]dns.Record{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range sec {
			if rr.Type() == dns.TypeOPT {
				continue
			}
			ttl := rr.Header().TTL
			if !found || ttl < min {
				min = ttl
				found = true
			}
		}
	}
	return min, found
}
