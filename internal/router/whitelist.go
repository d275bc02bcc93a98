package router

import "net/netip"

// Whitelist is the default CIDR whitelist matcher, satisfying
// pow.Whitelist.
type Whitelist struct {
	prefixes []netip.Prefix
}

// BuildWhitelist parses CIDR strings into a Whitelist. Malformed entries
// are skipped rather than failing the whole configure step; internal/config
// passes the configured list through unchecked, so a malformed entry is
// silently ignored.
func BuildWhitelist(cidrs []string) *Whitelist {
	w := &Whitelist{}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			continue
		}
		w.prefixes = append(w.prefixes, p)
	}
	return w
}

// Contains reports whether ip falls within any configured CIDR.
func (w *Whitelist) Contains(ip netip.Addr) bool {
	for _, p := range w.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
