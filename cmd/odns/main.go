// Command odns runs the recursive-forwarding DNS server: it loads
// configuration, opens the SQLite store, seeds the denylist/hosts list from
// both the database and the optional text files, wires the resolver
// pipeline, and starts the DNS listener and the admin API side by side,
// shutting both down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/jroosing/odns/internal/accesslist"
	"github.com/jroosing/odns/internal/api"
	"github.com/jroosing/odns/internal/cache"
	"github.com/jroosing/odns/internal/config"
	"github.com/jroosing/odns/internal/database"
	"github.com/jroosing/odns/internal/dns"
	"github.com/jroosing/odns/internal/logging"
	"github.com/jroosing/odns/internal/querylog"
	"github.com/jroosing/odns/internal/resolver"
	"github.com/jroosing/odns/internal/server"
	"github.com/jroosing/odns/internal/upstream"
)

// logQueueCapacity sizes the buffered channel between the resolver's
// per-query log emission and the query-log consumer's spool writer. The
// log channel drops silently when full, so this is headroom, not a
// backpressure point.
const logQueueCapacity = 1024

// commandQueueCapacity bounds the command channel between the admin API
// and the resolver.
const commandQueueCapacity = 10

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	dbPath     string
	host       string
	port       int
	workers    int
	jsonLogs   bool
	debug      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.dbPath, "db", "", "Override SQLite database path")
	flag.StringVar(&f.host, "host", "", "Override DNS server bind host")
	flag.IntVar(&f.port, "port", 0, "Override DNS server bind port")
	flag.IntVar(&f.workers, "workers", -1, "Override worker count (1-10, -1 keeps config value)")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Force JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.workers >= config.MinWorkers {
		cfg.Server.Workers = f.workers
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("odns starting",
		"database", cfg.Database.Path,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"workers", cfg.Server.Workers,
		"upstream", cfg.Upstream.Address(),
	)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	denylist := accesslist.NewDenylist()
	hosts := accesslist.NewHostsList()

	if err := seedAccessListsFromFiles(cfg, denylist, hosts, logger); err != nil {
		logger.Warn("failed to load access-list seed files", "error", err)
	}
	if err := seedAccessListsFromDatabase(ctx, db, denylist, hosts, logger); err != nil {
		return fmt.Errorf("seeding access lists from database: %w", err)
	}

	respCache := cache.NewCache(cfg.Cache.Capacity)

	upstreamTimeout, err := time.ParseDuration(cfg.Upstream.Timeout)
	if err != nil || upstreamTimeout <= 0 {
		upstreamTimeout = 2 * time.Second
	}
	upstreamClient := upstream.New(cfg.Upstream.Address(), upstreamTimeout)

	logCh := make(chan resolver.LogEntry, logQueueCapacity)
	res := resolver.New(resolver.Config{
		Denylist:   denylist,
		Hosts:      hosts,
		Cache:      respCache,
		Upstream:   upstreamClient,
		LogQueries: logCh,
	})

	spool, err := querylog.OpenSpool(cfg.Database.Path + ".spool")
	if err != nil {
		return fmt.Errorf("opening query-log spool: %w", err)
	}
	defer spool.Close()
	logConsumer := querylog.New(db, spool, logCh, logger)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	dnsServer, err := server.New(ctx, addr, res, cfg.Server.Workers, commandQueueCapacity, logger)
	if err != nil {
		return fmt.Errorf("starting DNS listener: %w", err)
	}

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.New(cfg, db, logger)
		apiSrv.Handler().SetCommands(dnsServer.Commands())
		logger.Info("admin API starting", "addr", apiSrv.Addr())
		go func() {
			if serveErr := apiSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.Error("admin API error", "error", serveErr)
			}
		}()
	}

	go logConsumer.Run(ctx)

	serveErr := dnsServer.Run(ctx)

	if apiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = apiSrv.Shutdown(shutdownCtx)
		shutdownCancel()
		logger.Info("admin API stopped")
	}
	close(logCh)

	if serveErr != nil {
		return fmt.Errorf("DNS server exited with error: %w", serveErr)
	}
	return nil
}

// seedAccessListsFromFiles parses the denylist/hosts text files named in
// cfg.Lists. Either path may be empty, in which case that source
// contributes nothing.
func seedAccessListsFromFiles(cfg *config.Config, denylist *accesslist.Denylist, hosts *accesslist.HostsList, logger *slog.Logger) error {
	if cfg.Lists.DenylistPath != "" {
		f, err := os.Open(cfg.Lists.DenylistPath)
		if err != nil {
			return fmt.Errorf("opening denylist file: %w", err)
		}
		defer f.Close()
		for i, e := range accesslist.ParseDenylistFile(f, logger) {
			if e.Regex != "" {
				re, err := regexp.Compile(e.Regex)
				if err != nil {
					logger.Warn("skipping invalid denylist regex", "pattern", e.Regex, "error", err)
					continue
				}
				denylist.AddRegex(fileSeedRegexID(i), re)
				continue
			}
			denylist.AddEntry(accesslist.HashDomain(e.Domain))
		}
	}

	if cfg.Lists.HostsPath != "" {
		f, err := os.Open(cfg.Lists.HostsPath)
		if err != nil {
			return fmt.Errorf("opening hosts file: %w", err)
		}
		defer f.Close()
		for _, e := range accesslist.ParseHostsFile(f, logger) {
			if err := hosts.Add(accesslist.HashDomain(e.Domain), hostsEntryFromIP(e.IP)); err != nil {
				logger.Warn("skipping invalid hosts entry", "domain", e.Domain, "error", err)
			}
		}
	}
	return nil
}

// fileSeedRegexID assigns a stable regex id to a text-file-seeded denylist
// regex entry. These ids live in a namespace disjoint from the database's
// autoincrement ids (which seedAccessListsFromDatabase uses directly) by
// starting at a high offset, so a file-seeded and a database-seeded regex
// can never collide and silently overwrite one another.
func fileSeedRegexID(i int) uint32 {
	const fileSeedRegexIDBase = 1 << 30
	return fileSeedRegexIDBase + uint32(i)
}

// hostsEntryFromIP classifies an IP literal into the A/AAAA record type the
// hosts list keys admission on.
func hostsEntryFromIP(ip net.IP) accesslist.Entry {
	if ip.To4() != nil {
		return accesslist.Entry{Type: dns.TypeA, Addr: ip}
	}
	return accesslist.Entry{Type: dns.TypeAAAA, Addr: ip}
}

// seedAccessListsFromDatabase replays every access-list row persisted
// through the admin API (see internal/database/list_entries.go) into the
// live denylist/hosts list, so dynamically added entries survive a restart
// without re-parsing the seed text files.
func seedAccessListsFromDatabase(ctx context.Context, db *database.DB, denylist *accesslist.Denylist, hosts *accesslist.HostsList, logger *slog.Logger) error {
	rows, err := db.ListAllEntries(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		switch row.Kind {
		case database.KindDeny:
			denylist.AddEntry(accesslist.HashDomain(row.Domain))
		case database.KindDenyRegex:
			if !row.Data.Valid {
				continue
			}
			re, err := regexp.Compile(row.Data.String)
			if err != nil {
				logger.Warn("skipping invalid persisted denylist regex", "id", row.ID, "error", err)
				continue
			}
			denylist.AddRegex(uint32(row.ID), re)
		case database.KindAllowA, database.KindAllowAAAA:
			if !row.Data.Valid {
				continue
			}
			ip := net.ParseIP(row.Data.String)
			if ip == nil {
				logger.Warn("skipping invalid persisted hosts IP", "id", row.ID, "data", row.Data.String)
				continue
			}
			if err := hosts.Add(accesslist.HashDomain(row.Domain), hostsEntryFromIP(ip)); err != nil {
				logger.Warn("skipping invalid persisted hosts entry", "id", row.ID, "error", err)
			}
		}
	}
	return nil
}
