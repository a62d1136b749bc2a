package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// trustedProxies matches the addresses of reverse proxies in front of the
// gateway. Only their Forwarded/X-Forwarded-For headers are believed.
type trustedProxies struct {
	prefixes []netip.Prefix
}

// newTrustedProxies parses IPs and CIDRs. Invalid entries are logged and
// skipped. Returns nil when nothing is trusted.
func newTrustedProxies(entries []string, logger *slog.Logger) *trustedProxies {
	var prefixes []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("invalid trusted proxy CIDR", "entry", entry, "error", err)
				continue
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			logger.Warn("invalid trusted proxy IP", "entry", entry, "error", err)
			continue
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	if len(prefixes) == 0 {
		return nil
	}
	return &trustedProxies{prefixes: prefixes}
}

func (t *trustedProxies) contains(addr netip.Addr) bool {
	if t == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientAddr returns the client address of r.
//
// The peer address is used unless the peer is a trusted proxy. Then the
// forwarding chain is walked from the right and the first untrusted hop
// wins; a chain made only of trusted hops yields its leftmost entry.
func clientAddr(r *http.Request, trusted *trustedProxies) netip.Addr {
	peer := parseHostAddr(r.RemoteAddr)
	if !peer.IsValid() || !trusted.contains(peer) {
		return peer
	}

	chain := forwardedFor(r.Header.Get("Forwarded"))
	if len(chain) == 0 {
		chain = xForwardedFor(r.Header.Get("X-Forwarded-For"))
	}
	if len(chain) == 0 {
		return peer
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if !trusted.contains(chain[i]) {
			return chain[i]
		}
	}
	return chain[0]
}

// forwardedFor extracts the for= parameters of an RFC 7239 Forwarded header.
func forwardedFor(header string) []netip.Addr {
	var out []netip.Addr
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "for") {
				continue
			}
			if addr := parseHostAddr(value); addr.IsValid() {
				out = append(out, addr)
			}
		}
	}
	return out
}

func xForwardedFor(header string) []netip.Addr {
	var out []netip.Addr
	for _, part := range strings.Split(header, ",") {
		if addr := parseHostAddr(part); addr.IsValid() {
			out = append(out, addr)
		}
	}
	return out
}

// parseHostAddr accepts "ip", "ip:port", "[v6]", "[v6]:port" and quoted forms.
// "unknown" and obfuscated identifiers yield the zero Addr.
func parseHostAddr(value string) netip.Addr {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" || strings.EqualFold(value, "unknown") {
		return netip.Addr{}
	}

	host := value
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end != -1 {
			host = host[1:end]
		}
	} else if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.WithZone("").Unmap()
}
