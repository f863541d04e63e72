package accesslist

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// DenyFileEntry is one successfully parsed line of a denylist file: either a
// domain (Domain set, Regex empty) or a regex (Regex set, Domain empty).
type DenyFileEntry struct {
	Domain string
	Regex  string
	Label  string
}

// HostFileEntry is one successfully parsed line of a hosts file.
type HostFileEntry struct {
	Domain string
	IP     net.IP
	Label  string
}

// ParseDenylistFile reads a denylist file: one entry per line, `#` starts a
// trailing comment, blank lines are skipped. Each line is a domain
// (optionally "*."-prefixed) or a "/regex/" with "\/" escaping, optionally
// followed by a "[label]". Malformed lines are skipped and logged at debug
// level rather than aborting the whole file, matching the tolerant behavior
// of the reference parser this is grounded on.
func ParseDenylistFile(r io.Reader, logger *slog.Logger) []DenyFileEntry {
	if logger == nil {
		logger = slog.Default()
	}

	var out []DenyFileEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimLeft(scanner.Text(), " \t")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var entry DenyFileEntry
		var rest string
		var ok bool
		if strings.HasPrefix(line, "/") {
			entry.Regex, rest, ok = parseRegexToken(line)
			if !ok {
				logger.Debug("accesslist: skipping malformed regex line", "line", line)
				continue
			}
		} else {
			entry.Domain, rest, ok = parseDomainToken(line)
			if !ok {
				logger.Debug("accesslist: skipping malformed domain line", "line", line)
				continue
			}
		}

		entry.Label = parseLabelToken(rest)
		out = append(out, entry)
	}
	return out
}

// ParseHostsFile reads a hosts file: `<domain> <ip-literal> [label]` per
// non-blank, non-comment line. The IP's address family selects A vs AAAA at
// the call site (HostFileEntry just carries the parsed net.IP). Malformed
// lines are skipped and logged at debug level.
func ParseHostsFile(r io.Reader, logger *slog.Logger) []HostFileEntry {
	if logger == nil {
		logger = slog.Default()
	}

	var out []HostFileEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimLeft(scanner.Text(), " \t")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		domain, rest, ok := parseDomainToken(line)
		if !ok {
			logger.Debug("accesslist: skipping malformed domain in hosts file", "line", line)
			continue
		}

		rest = strings.TrimLeft(rest, " \t")
		fields := strings.SplitN(rest, " ", 2)
		ip := net.ParseIP(strings.TrimSpace(fields[0]))
		if ip == nil {
			logger.Debug("accesslist: skipping hosts line with invalid IP", "line", line)
			continue
		}

		var labelSource string
		if len(fields) > 1 {
			labelSource = fields[1]
		}
		out = append(out, HostFileEntry{
			Domain: domain,
			IP:     ip,
			Label:  parseLabelToken(labelSource),
		})
	}
	return out
}

// parseDomainToken consumes a leading domain name from line: ASCII
// alphanumerics, '-', '.', any non-ASCII UTF-8 byte (for internationalized
// labels), with an optional leading "*." wildcard label and no '*' anywhere
// else. Non-ASCII labels are punycode-normalized via idna before the TLD
// check, so both "xn--..." and native-script domains in the seed files
// resolve to the same internal hash. Requires a TLD of 2+ ASCII letters
// once normalized. Returns the lowercased, ASCII-compatible domain and the
// unconsumed remainder of the line.
func parseDomainToken(line string) (domain, rest string, ok bool) {
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case i > 0 && (c == '.' || c == '-'):
		case i == 0 && c == '*':
		case c >= 0x80:
		default:
			goto scanned
		}
		i++
	}
scanned:
	token := line[:i]
	if token == "" {
		return "", line, false
	}
	lower := strings.ToLower(token)

	if strings.HasPrefix(lower, "*") && !strings.HasPrefix(lower, "*.") {
		return "", line, false
	}
	if strings.Count(lower, "*") > 1 {
		return "", line, false
	}

	wildcard := strings.HasPrefix(lower, "*.")
	labelPart := lower
	if wildcard {
		labelPart = lower[2:]
	}
	ascii, err := idna.Lookup.ToASCII(labelPart)
	if err != nil {
		return "", line, false
	}
	if wildcard {
		ascii = "*." + ascii
	}

	dot := strings.LastIndexByte(ascii, '.')
	if dot < 0 || dot == len(ascii)-1 {
		return "", line, false
	}
	tld := ascii[dot+1:]
	if len(tld) < 2 {
		return "", line, false
	}
	for _, c := range tld {
		if c < 'a' || c > 'z' {
			return "", line, false
		}
	}

	return ascii, line[i:], true
}

// parseRegexToken consumes a leading "/pattern/" token, honoring "\/" as an
// escaped delimiter, and returns the unescaped delimiter's contents plus the
// remainder of the line.
func parseRegexToken(line string) (pattern, rest string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", line, false
	}
	body := line[1:]
	escaped := false
	i := 0
	for i < len(body) {
		c := body[i]
		if c == '/' && !escaped {
			break
		}
		escaped = c == '\\' && !escaped
		i++
	}
	if i >= len(body) {
		return "", line, false
	}
	return body[:i], body[i+1:], true
}

// parseLabelToken extracts the contents of a trailing "[label]", if present.
func parseLabelToken(s string) string {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start:], ']')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+end]
}
