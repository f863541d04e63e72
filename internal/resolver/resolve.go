package resolver

import (
	"context"
	"time"

	"github.com/jroosing/odns/internal/accesslist"
	"github.com/jroosing/odns/internal/dns"
)

// synthesizedTTL is the TTL on denylist/allowlist synthetic answers.
const synthesizedTTL = 180

// serverEDNSUDPSize is the UDP payload size this server advertises in its
// own OPT record when a client's query carried EDNS.
const serverEDNSUDPSize = dns.EDNSDefaultUDPPayloadSize

// Resolve runs the full per-query pipeline against reqBytes: denylist,
// allowlist, no-recurse shortcut, cache, and (on a full miss) upstream
// forwarding. It returns the encoded response ready to write back to the
// client, or nil if the query was too malformed to even identify (the
// header itself didn't parse) — callers must simply drop the connection
// in that case, not reply.
//
// isTCP selects whether the encoded response is length-unbounded (TCP) or
// bounded to the client's advertised EDNS buffer size, or 512 bytes with
// no EDNS (UDP) — that size is read from the request's own OPT record, not
// supplied by the caller, since Resolve already parses the request.
func (r *Resolver) Resolve(ctx context.Context, reqBytes []byte, clientIP string, isTCP bool) []byte {
	start := time.Now()

	reqPacket, parseErr := dns.ParseRequestBounded(reqBytes)
	if parseErr != nil {
		// Reply FormatError only if at least the header parsed; anything
		// less identifiable is dropped without a response.
		hdr, ok := parseHeaderOnly(reqBytes)
		if !ok {
			return nil
		}
		resp := emptyResponse(hdr, false)
		if p, err := dns.ParsePacket(reqBytes); err == nil {
			resp.Questions = p.Questions
		}
		resp.Header.Flags |= uint16(dns.RCodeFormErr)
		return r.finish(resp, nil, clientIP, isTCP, dns.DefaultUDPPayloadSize, start, 0, 0, false)
	}

	requestorUDPSize := dns.ClientMaxUDPSize(reqPacket)
	hasEDNS := dns.ExtractOPT(reqPacket.Additionals) != nil
	resp := emptyResponse(reqPacket.Header, hasEDNS)

	question := reqPacket.Questions[0]
	resp.Questions = []dns.Question{question}

	dnssec := false
	if opt := dns.ExtractOPT(reqPacket.Additionals); opt != nil {
		dnssec = opt.DNSSECOk
	}

	// Denylist lookup.
	if r.denylist != nil && r.denylist.Contains(question.Name) {
		resp.Header.Flags |= dns.AAFlag
		if rr := denylistSyntheticAnswer(question); rr != nil {
			resp.Answers = append(resp.Answers, rr)
		}
		src := SourceDenylist
		return r.finish(resp, &src, clientIP, isTCP, requestorUDPSize, start, 0, 0, dnssec)
	}

	// Hosts (allowlist) lookup.
	if r.hosts != nil {
		if entries, ok := r.hosts.Lookup(question.Name); ok {
			matched := matchingHostsAnswers(question, entries)
			if len(matched) > 0 {
				resp.Header.Flags |= dns.AAFlag
				resp.Answers = append(resp.Answers, matched...)
				src := SourceAllowlist
				return r.finish(resp, &src, clientIP, isTCP, requestorUDPSize, start, 0, 0, dnssec)
			}
		}
	}

	// No-recurse shortcut.
	if reqPacket.Header.Flags&dns.RDFlag == 0 {
		src := SourceNoRecurse
		return r.finish(resp, &src, clientIP, isTCP, requestorUDPSize, start, 0, 0, dnssec)
	}

	// Cache lookup.
	if r.cache != nil {
		if result, hit := r.cache.Lookup(question, dnssec); hit {
			resp.Answers = result.Answers
			resp.Authorities = result.Authorities
			resp.Additionals = append(resp.Additionals, result.Additionals...)
			if result.AD {
				resp.Header.Flags |= dns.ADFlag
			}
			src := SourceCache
			return r.finish(resp, &src, clientIP, isTCP, requestorUDPSize, start, 0, 0, dnssec)
		}
	}

	// Upstream resolve.
	cacheFor, cacheEligible := r.resolveWithUpstream(ctx, question, reqPacket.Header.ID, dnssec, &resp)
	src := SourceUpstream
	return r.finish(resp, &src, clientIP, isTCP, requestorUDPSize, start, cacheFor, boolToInt(cacheEligible), dnssec)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// emptyResponse builds the base response skeleton: QR=1, RA=1, id and RD
// mirrored from the request header, and (if withEDNS) an OPT record
// advertising this server's own UDP payload size.
func emptyResponse(reqHeader dns.Header, withEDNS bool) dns.Packet {
	p := dns.Packet{}
	p.Header.ID = reqHeader.ID
	p.Header.Flags = dns.QRFlag | dns.RAFlag
	p.Header.Flags |= reqHeader.Flags & dns.RDFlag
	if withEDNS {
		opt := dns.CreateOPT(serverEDNSUDPSize)
		p.Additionals = append(p.Additionals, opt.ToRecord())
	}
	return p
}

// parseHeaderOnly attempts to read just the 12-byte header, for building a
// FormatError reply when the rest of the message failed to parse.
func parseHeaderOnly(msg []byte) (dns.Header, bool) {
	if len(msg) < dns.HeaderSize {
		return dns.Header{}, false
	}
	off := 0
	h, err := dns.ParseHeader(msg, &off)
	if err != nil {
		return dns.Header{}, false
	}
	return h, true
}

// denylistSyntheticAnswer builds the synthetic answer for a denylisted
// query: A 0.0.0.0 for A/ANY, AAAA :: for AAAA, nothing otherwise.
func denylistSyntheticAnswer(q dns.Question) dns.Record {
	h := dns.RRHeader{Name: q.Name, Class: uint16(dns.ClassIN), TTL: synthesizedTTL}
	switch dns.RecordType(q.Type) {
	case dns.TypeA, dns.TypeANY:
		return dns.NewIPRecord(h, v4Unspecified)
	case dns.TypeAAAA:
		return dns.NewIPRecord(h, v6Unspecified)
	default:
		return nil
	}
}

// matchingHostsAnswers converts the hosts entries matching question's
// qtype (all of them, for ANY) into answer records with TTL=180.
func matchingHostsAnswers(q dns.Question, entries []accesslist.Entry) []dns.Record {
	var out []dns.Record
	h := dns.RRHeader{Name: q.Name, Class: uint16(dns.ClassIN), TTL: synthesizedTTL}
	for _, e := range entries {
		if dns.RecordType(q.Type) != dns.TypeANY && e.Type != dns.RecordType(q.Type) {
			continue
		}
		switch e.Type {
		case dns.TypeA, dns.TypeAAAA:
			out = append(out, dns.NewIPRecord(h, e.Addr))
		case dns.TypeCNAME:
			out = append(out, dns.NewNameRecord(h, dns.TypeCNAME, e.Target))
		}
	}
	return out
}
