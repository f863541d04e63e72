package dns

import (
	"encoding/binary"
	"fmt"
)

// RRHeader holds the fields shared by every resource record: the owner
// name, class, and TTL. The record type itself is reported by Record.Type,
// not stored redundantly here.
type RRHeader struct {
	Name  string
	Class uint16
	TTL   uint32
}

// NewRRHeader builds an RRHeader for the given owner name, class, and TTL.
func NewRRHeader(name string, class RecordClass, ttl uint32) RRHeader {
	return RRHeader{Name: name, Class: uint16(class), TTL: ttl}
}

// Record is a single resource record in the answer, authority, or additional
// section of a DNS packet. Concrete implementations (IPRecord, NameRecord,
// OpaqueRecord) hold type-specific RDATA; the wire codec dispatches on
// Type() to pick the right parser and encoder.
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}

// ParseRecord parses a single resource record from msg at *off, dispatching
// to the concrete Record implementation for its type. Unknown or
// unsupported types fall back to OpaqueRecord, which preserves the raw
// RDATA bytes without interpreting them.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	h := RRHeader{Name: name, Class: rrClass, TTL: ttl}

	var rec Record
	switch rrType {
	case TypeA, TypeAAAA:
		rec, err = ParseIPRData(msg, off, rdlen)
	case TypeCNAME, TypeNS, TypePTR:
		rec, err = ParseNameRData(msg, off, start, rdlen, rrType)
	default:
		rec, err = ParseOpaqueRData(msg, off, rdlen, rrType)
	}
	if err != nil {
		return nil, err
	}
	rec.SetHeader(h)
	return rec, nil
}

// marshalRecord serializes a Record to wire format: owner name, type,
// class, TTL, RDLENGTH, and RDATA. OPT pseudo-records always use the root
// name regardless of Header().Name, per RFC 6891 §6.1.2.
func marshalRecord(r Record) ([]byte, error) {
	h := r.Header()

	var nameWire []byte
	if r.Type() == TypeOPT {
		nameWire = []byte{0}
	} else {
		n, err := EncodeName(h.Name)
		if err != nil {
			return nil, err
		}
		nameWire = n
	}

	rdata, err := r.MarshalRData()
	if err != nil {
		return nil, err
	}
	if len(rdata) > 0xFFFF {
		return nil, fmt.Errorf("%w: RDATA too long (%d > 65535)", ErrDNSError, len(rdata))
	}

	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(r.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], h.Class)
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}

// cacheAwareRData is implemented by record types whose RDATA embeds a
// domain name (currently NameRecord) that can benefit from message
// compression. Types that don't implement it fall back to MarshalRData.
type cacheAwareRData interface {
	MarshalRDataWithCache(cache map[string]int, pos int) ([]byte, error)
}

// marshalRecordWithCache is marshalRecord's compression-aware counterpart,
// used by Packet.MarshalBounded. pos is the absolute offset in the message
// at which this record will be written.
func marshalRecordWithCache(r Record, cache map[string]int, pos int) ([]byte, error) {
	h := r.Header()

	var nameWire []byte
	if r.Type() == TypeOPT {
		nameWire = []byte{0}
	} else {
		n, err := EncodeNameWithCache(h.Name, cache, pos)
		if err != nil {
			return nil, err
		}
		nameWire = n
	}

	var rdata []byte
	var err error
	if cr, ok := r.(cacheAwareRData); ok {
		rdata, err = cr.MarshalRDataWithCache(cache, pos+len(nameWire)+10)
	} else {
		rdata, err = r.MarshalRData()
	}
	if err != nil {
		return nil, err
	}
	if len(rdata) > 0xFFFF {
		return nil, fmt.Errorf("%w: RDATA too long (%d > 65535)", ErrDNSError, len(rdata))
	}

	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(r.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], h.Class)
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}
