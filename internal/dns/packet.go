package dns

import (
	"fmt"

	"github.com/jroosing/odns/internal/helpers"
)

// Packet represents a complete DNS message (RFC 1035 Section 4).
//
// A DNS packet consists of a header and four sections:
//   - Questions: What the client is asking
//   - Answers: Resource records answering the question
//   - Authorities: Nameserver records pointing to authorities
//   - Additionals: Extra records (e.g., glue records, EDNS OPT)
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Marshal serializes the packet to DNS wire format (big-endian), without
// message compression or size bounding. Use MarshalBounded when encoding a
// response that must respect a client's advertised buffer size.
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: helpers.ClampIntToUint16(len(p.Questions)),
		ANCount: helpers.ClampIntToUint16(len(p.Answers)),
		NSCount: helpers.ClampIntToUint16(len(p.Authorities)),
		ARCount: helpers.ClampIntToUint16(len(p.Additionals)),
	}

	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	// Estimate capacity: header(12) + question(~50) + records(~100 each)
	estimatedSize := HeaderSize + len(p.Questions)*50 + (len(p.Answers)+len(p.Authorities)+len(p.Additionals))*100
	out := make([]byte, 0, estimatedSize)
	out = append(out, hb...)
	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	for _, rr := range p.Answers {
		b, err := marshalRecord(rr)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	for _, rr := range p.Authorities {
		b, err := marshalRecord(rr)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	for _, rr := range p.Additionals {
		b, err := marshalRecord(rr)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// MarshalBounded serializes p with message compression applied to every
// owner name and name-valued RDATA, and, if maxSize is non-nil, walks the
// answer, authority, and additional sections (in that order) and drops
// each resource record that would push the encoded message past *maxSize;
// a later, smaller record is still kept if it fits. Dropped records
// decrement their section's count and set the TC (truncation) bit in the
// returned header.
//
// An EDNS OPT record present in the additional section is never dropped:
// if it alone cannot fit within *maxSize, encoding fails outright, since a
// response can't silently omit the OPT record clients rely on for EDNS
// negotiation without also losing a question of protocol conformance.
//
// maxSize is nil for TCP responses, which are length-prefixed and not
// subject to a fixed buffer size.
func (p Packet) MarshalBounded(maxSize *int) ([]byte, error) {
	if maxSize != nil && *maxSize < HeaderSize {
		return nil, fmt.Errorf("%w: max size too low to fit a DNS header", ErrDNSError)
	}

	cache := make(map[string]int)
	buf := make([]byte, HeaderSize)
	pos := HeaderSize

	for _, q := range p.Questions {
		qb, err := q.marshalWithCache(cache, pos)
		if err != nil {
			return nil, err
		}
		buf = append(buf, qb...)
		pos += len(qb)
	}
	if maxSize != nil && pos > *maxSize {
		return nil, fmt.Errorf("%w: max size too low to fit the question section", ErrDNSError)
	}

	// An EDNS OPT record's space is reserved up front: every other record
	// is budgeted against *maxSize minus the reservation, and the
	// reservation is consumed when the OPT itself is written. Its encoded
	// size is position-independent (root name, opaque RDATA), so the trial
	// size below is exactly what the final write will occupy.
	optIdx := -1
	for i, r := range p.Additionals {
		if r.Type() == TypeOPT {
			optIdx = i
			break
		}
	}
	optReserved := 0
	if optIdx >= 0 && maxSize != nil {
		b, err := marshalRecordWithCache(p.Additionals[optIdx], cache, pos)
		if err != nil {
			return nil, err
		}
		if pos+len(b) > *maxSize {
			return nil, fmt.Errorf("%w: max size too low: can't fit OPT RR", ErrDNSError)
		}
		optReserved = len(b)
	}

	truncated := false

	// encodeSection marshals records in order, dropping (and continuing
	// past) any that would overflow maxSize. keepIdx, when >= 0, names a
	// record that must always be kept regardless of budget (the OPT RR,
	// whose bytes replace its reservation once written).
	//
	// Each record is encoded against a snapshot of cache first; a dropped
	// record never actually occupies the offsets its trial encode recorded
	// suffixes at, so the snapshot is restored before moving on. Without
	// this, a later record sharing one of those suffixes would compress
	// against an offset that, in the real buffer, holds someone else's
	// bytes once the dropped record's space never materializes.
	encodeSection := func(records []Record, keepIdx int) (kept []Record, out []byte) {
		for i, r := range records {
			snapshot := make(map[string]int, len(cache))
			for k, v := range cache {
				snapshot[k] = v
			}
			b, err := marshalRecordWithCache(r, cache, pos+len(out))
			if err != nil {
				cache = snapshot
				truncated = true
				continue
			}
			if maxSize != nil && i != keepIdx && pos+len(out)+len(b)+optReserved > *maxSize {
				cache = snapshot
				truncated = true
				continue
			}
			if i == keepIdx {
				optReserved = 0
			}
			kept = append(kept, r)
			out = append(out, b...)
		}
		return kept, out
	}

	keptAnswers, ansBytes := encodeSection(p.Answers, -1)
	buf = append(buf, ansBytes...)
	pos += len(ansBytes)

	keptAuth, authBytes := encodeSection(p.Authorities, -1)
	buf = append(buf, authBytes...)
	pos += len(authBytes)

	keptAdd, addBytes := encodeSection(p.Additionals, optIdx)
	buf = append(buf, addBytes...)
	pos += len(addBytes)

	flags := p.Header.Flags
	if truncated {
		flags |= TCFlag
	} else {
		flags &^= TCFlag
	}
	h := Header{
		ID:      p.Header.ID,
		Flags:   flags,
		QDCount: helpers.ClampIntToUint16(len(p.Questions)),
		ANCount: helpers.ClampIntToUint16(len(keptAnswers)),
		NSCount: helpers.ClampIntToUint16(len(keptAuth)),
		ARCount: helpers.ClampIntToUint16(len(keptAdd)),
	}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	copy(buf[:HeaderSize], hb)
	return buf, nil
}

// ParsePacket parses a complete DNS message from wire format.
func ParsePacket(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	// Cap initial allocation to avoid DoS with large counts in header
	// but small actual packet size.
	limitCount := func(count uint16, limit int) int {
		if int(count) > limit {
			return limit
		}
		return int(count)
	}

	p.Questions = make([]Question, 0, limitCount(h.QDCount, MaxQuestions))
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}
	p.Answers = make([]Record, 0, limitCount(h.ANCount, MaxRRPerSection))
	for range h.ANCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Answers = append(p.Answers, rr)
	}
	p.Authorities = make([]Record, 0, limitCount(h.NSCount, MaxRRPerSection))
	for range h.NSCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Authorities = append(p.Authorities, rr)
	}
	p.Additionals = make([]Record, 0, limitCount(h.ARCount, MaxRRPerSection))
	for range h.ARCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Additionals = append(p.Additionals, rr)
	}
	return p, nil
}
