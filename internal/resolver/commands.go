package resolver

import (
	"fmt"
	"net"
	"regexp"

	"github.com/jroosing/odns/internal/accesslist"
	"github.com/jroosing/odns/internal/dns"
)

// EntryKind identifies which access-list a Command targets.
type EntryKind uint8

const (
	KindDenyDomain EntryKind = iota
	KindDenyRegex
	KindHosts
)

// Command is a single mutation delivered over the resolver's command
// channel by the admin API: add or remove one access-list entry. Only the
// fields relevant to Kind are read.
type Command struct {
	Kind EntryKind

	// DenyDomain, Hosts
	Hash accesslist.Hash

	// DenyRegex
	RegexID uint32
	Regex   *regexp.Regexp // present on add, nil on remove (matched by id)

	// Hosts
	IP net.IP
}

// AddListEntry applies a command that adds an entry to the denylist or
// hosts list. It returns an error only for a malformed command (e.g. a
// DenyRegex add with no compiled regex, or a Hosts add whose IP can't be
// classified as A/AAAA) — never for denylist growth or duplicate entries.
func (r *Resolver) AddListEntry(cmd Command) error {
	switch cmd.Kind {
	case KindDenyDomain:
		r.denylist.AddEntry(cmd.Hash)
		return nil
	case KindDenyRegex:
		if cmd.Regex == nil {
			return fmt.Errorf("resolver: missing compiled regex for DenyRegex add (id=%d)", cmd.RegexID)
		}
		r.denylist.AddRegex(cmd.RegexID, cmd.Regex)
		return nil
	case KindHosts:
		rt, err := hostsRecordType(cmd.IP)
		if err != nil {
			return err
		}
		return r.hosts.Add(cmd.Hash, accesslist.Entry{Type: rt, Addr: cmd.IP})
	default:
		return fmt.Errorf("resolver: unknown entry kind %d", cmd.Kind)
	}
}

// RemoveListEntry applies a command that removes an entry. Unknown or
// already-absent entries are a no-op, matching the underlying access-list
// types' own remove semantics.
func (r *Resolver) RemoveListEntry(cmd Command) {
	switch cmd.Kind {
	case KindDenyDomain:
		r.denylist.RemoveEntry(cmd.Hash)
	case KindDenyRegex:
		r.denylist.RemoveRegex(cmd.RegexID)
	case KindHosts:
		rt, err := hostsRecordType(cmd.IP)
		if err != nil {
			return
		}
		r.hosts.Remove(cmd.Hash, rt)
	}
}

func hostsRecordType(ip net.IP) (dns.RecordType, error) {
	if ip == nil {
		return 0, fmt.Errorf("resolver: hosts entry has no IP address")
	}
	if ip.To4() != nil {
		return dns.TypeA, nil
	}
	return dns.TypeAAAA, nil
}
