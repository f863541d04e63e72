// Package resolver implements the per-query resolution state machine:
// denylist lookup, allowlist lookup, cache lookup, and upstream forwarding,
// in that fixed order, plus the command channel that lets the admin API
// mutate the denylist/hosts list at runtime.
package resolver

import (
	"time"

	"github.com/jroosing/odns/internal/accesslist"
	"github.com/jroosing/odns/internal/cache"
	"github.com/jroosing/odns/internal/dns"
	"github.com/jroosing/odns/internal/upstream"
)

// Source tags where a response's data came from, for logging.
type Source uint8

const (
	SourceDenylist Source = iota
	SourceAllowlist
	SourceCache
	SourceNoRecurse
	SourceUpstream
)

func (s Source) String() string {
	switch s {
	case SourceDenylist:
		return "denylist"
	case SourceAllowlist:
		return "allowlist"
	case SourceCache:
		return "cache"
	case SourceNoRecurse:
		return "no-recurse"
	case SourceUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// LogEntry is one record emitted to the query-log channel per answered
// query. Source is nil for a response with no meaningful origin (a
// FormatError from a malformed or multi-question query never reaches any
// pipeline stage).
type LogEntry struct {
	Timestamp     time.Time
	QName         string
	QType         uint16
	ClientIP      string
	ResponseCode  dns.RCode
	ResponseDelay time.Duration
	Source        *Source
}

// Config bundles the shared state a Resolver operates over.
type Config struct {
	Denylist *accesslist.Denylist
	Hosts    *accesslist.HostsList
	Cache    *cache.Cache
	Upstream *upstream.Client

	// LogQueries, when non-nil, receives one LogEntry per answered query.
	// Sends are non-blocking: a full or nil channel silently drops the
	// entry, per the "log channel" policy.
	LogQueries chan<- LogEntry
}

// Resolver runs the per-query resolution pipeline against a shared state
// bundle. A single Resolver is safe for concurrent use by multiple worker
// goroutines: all shared mutable state is owned by accesslist/cache types
// that guard themselves internally.
type Resolver struct {
	denylist   *accesslist.Denylist
	hosts      *accesslist.HostsList
	cache      *cache.Cache
	upstream   *upstream.Client
	logQueries chan<- LogEntry
}

// New builds a Resolver from cfg.
func New(cfg Config) *Resolver {
	return &Resolver{
		denylist:   cfg.Denylist,
		hosts:      cfg.Hosts,
		cache:      cfg.Cache,
		upstream:   cfg.Upstream,
		logQueries: cfg.LogQueries,
	}
}
