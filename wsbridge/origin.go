package wsbridge

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// loopbackHostnames are always accepted regardless of the allow-list: the
// observability link's websocket transport only ever faces a browser
// inspector dialing the same machine, so a same-host Origin is never a
// cross-site forgery risk even with an empty allow-list.
var loopbackHostnames = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// IsOriginAllowed checks the upgrade request's Origin header against a
// browser-inspector allow-list. Supported entry forms:
//   - a full origin, e.g. "https://inspector.local:5173"
//   - a bare hostname, e.g. "inspector.local"
//   - a wildcard hostname, e.g. "*.inspector.local"
//   - an exact non-standard value, e.g. "null"
//
// If the request carries no Origin header, allowNoOrigin decides acceptance
// (a same-process CLI inspector dialing over loopback often sends none). A
// loopback Origin hostname is always accepted, independent of allowed.
func IsOriginAllowed(r *http.Request, allowed []string, allowNoOrigin bool) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return allowNoOrigin
	}
	parsed, err := url.Parse(origin)
	host := ""
	hostname := ""
	if err == nil {
		host = parsed.Host
		hostname = parsed.Hostname()
	}
	if loopbackHostnames[strings.ToLower(hostname)] {
		return true
	}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "://") {
			if strings.EqualFold(origin, entry) {
				return true
			}
			continue
		}
		if strings.HasPrefix(entry, "*.") {
			base := strings.TrimPrefix(entry, "*.")
			if hostname != "" && base != "" {
				if !strings.EqualFold(hostname, base) && strings.HasSuffix(strings.ToLower(hostname), "."+strings.ToLower(base)) {
					return true
				}
			}
			continue
		}
		if host != "" {
			if _, _, err := net.SplitHostPort(entry); err == nil {
				if strings.EqualFold(host, entry) {
					return true
				}
				continue
			}
		}
		if hostname != "" && strings.EqualFold(hostname, entry) {
			return true
		}
		if strings.EqualFold(origin, entry) {
			return true
		}
	}
	return false
}

// NewOriginChecker adapts IsOriginAllowed to the websocket upgrader's
// CheckOrigin hook.
func NewOriginChecker(allowed []string, allowNoOrigin bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		return IsOriginAllowed(r, allowed, allowNoOrigin)
	}
}
