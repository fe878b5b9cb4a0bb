package auth

import (
	"fmt"
	"net"
	"path"
	"strings"
)

// AllowList decides which peers may talk to the RPC server.
//
// Loopback peers are always allowed. Everyone else must match one entry:
// an exact address, a CIDR block, or a wildcard pattern over the textual
// address ("192.168.1.*", "10.0.?.1").
type AllowList struct {
	patterns []string
	nets     []*net.IPNet
}

// NewAllowList parses the configured entries. A malformed CIDR or wildcard
// pattern is rejected so a typo cannot silently lock everyone out.
func NewAllowList(entries []string) (*AllowList, error) {
	al := &AllowList{}

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, ipnet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allow-list entry %q: %w", entry, err)
			}
			al.nets = append(al.nets, ipnet)
			continue
		}

		if _, err := path.Match(entry, ""); err != nil {
			return nil, fmt.Errorf("invalid allow-list pattern %q: %w", entry, err)
		}
		al.patterns = append(al.patterns, entry)
	}

	return al, nil
}

// LoopbackOnly reports whether nothing beyond loopback is allowed, in which
// case the listener binds loopback addresses only.
func (al *AllowList) LoopbackOnly() bool {
	return len(al.patterns) == 0 && len(al.nets) == 0
}

// Allowed reports whether ip may connect.
func (al *AllowList) Allowed(ip net.IP) bool {
	ip = Normalize(ip)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}

	for _, n := range al.nets {
		if n.Contains(ip) {
			return true
		}
	}

	addr := ip.String()
	for _, p := range al.patterns {
		if ok, _ := path.Match(p, addr); ok {
			return true
		}
	}
	return false
}

// Normalize turns IPv4-mapped (::ffff:a.b.c.d) and IPv4-compatible
// (::a.b.c.d) IPv6 addresses into plain IPv4 so they match IPv4 rules.
func Normalize(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	if len(ip) != net.IPv6len {
		return ip
	}

	for _, b := range ip[:12] {
		if b != 0 {
			return ip
		}
	}
	// :: and ::1 are not IPv4-compatible addresses.
	if ip[12] == 0 && ip[13] == 0 && ip[14] == 0 && ip[15] <= 1 {
		return ip
	}
	return net.IPv4(ip[12], ip[13], ip[14], ip[15]).To4()
}
