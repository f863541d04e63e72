package resolver

import (
	"net"
	"time"

	"github.com/jroosing/odns/internal/dns"
)

var (
	v4Unspecified = net.IPv4(0, 0, 0, 0)
	v6Unspecified = net.IPv6unspecified
)

// finish runs the shared tail of the pipeline for every exit path: encode,
// cache write (Source==Upstream only), log, and return the wire bytes. src
// is nil for a response with no pipeline source (FormatError on an
// unparseable or multi-question query).
//
// cacheFor/cacheEligible/dnssec are only consulted for src ==
// SourceUpstream; other callers pass zero values. dnssec is the request's
// DO bit, as derived once near the top of Resolve — not re-derived from
// whether the response happens to carry an OPT record, since the response
// always gets one whenever the request had EDNS regardless of DO.
func (r *Resolver) finish(resp dns.Packet, src *Source, clientIP string, isTCP bool, requestorUDPSize int, start time.Time, cacheFor uint32, cacheEligible int, dnssec bool) []byte {
	if src != nil && *src == SourceUpstream && cacheEligible == 1 && r.cache != nil && len(resp.Questions) == 1 {
		ad := resp.Header.Flags&dns.ADFlag != 0
		_ = r.cache.Store(resp.Questions[0], resp.Answers, resp.Authorities, resp.Additionals, ad, dnssec, cacheFor)
	}

	var maxSize *int
	if !isTCP {
		sz := requestorUDPSize
		if sz <= 0 {
			sz = dns.DefaultUDPPayloadSize
		}
		maxSize = &sz
	}

	out, err := resp.MarshalBounded(maxSize)
	if err != nil {
		out, _ = emptyResponse(resp.Header, false).MarshalBounded(maxSize)
	}

	r.log(resp, src, clientIP, start)
	return out
}

func (r *Resolver) log(resp dns.Packet, src *Source, clientIP string, start time.Time) {
	if r.logQueries == nil {
		return
	}
	entry := LogEntry{
		Timestamp:     start,
		ClientIP:      clientIP,
		ResponseCode:  dns.RCode(resp.Header.Flags & 0x0F),
		ResponseDelay: time.Since(start),
		Source:        src,
	}
	if len(resp.Questions) == 1 {
		entry.QName = resp.Questions[0].Name
		entry.QType = resp.Questions[0].Type
	}
	select {
	case r.logQueries <- entry:
	default:
	}
}
