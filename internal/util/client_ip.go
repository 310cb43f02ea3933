package util

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies is the set of peers whose forwarded headers are believed.
type TrustedProxies struct {
	ranges []*net.IPNet
}

// NewTrustedProxies parses IPs and CIDR ranges into a proxy allowlist.
// With no usable entries it returns nil, meaning forwarded headers are
// ignored entirely.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	var ranges []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ipnet, err := parseCIDROrIP(entry)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, ipnet)
	}
	if len(ranges) == 0 {
		return nil, nil
	}
	return &TrustedProxies{ranges: ranges}, nil
}

func parseCIDROrIP(entry string) (*net.IPNet, error) {
	if strings.Contains(entry, "/") {
		_, ipnet, err := net.ParseCIDR(entry)
		return ipnet, err
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("invalid proxy address %q", entry)
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// Contains reports whether ip falls inside any trusted range. A nil receiver
// trusts nothing.
func (t *TrustedProxies) Contains(ip net.IP) bool {
	if t == nil || ip == nil {
		return false
	}
	for _, r := range t.ranges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the caller's address for rate limiting and audit logs.
// X-Forwarded-For and X-Real-IP are consulted only when the direct peer is a
// trusted proxy; otherwise the socket address wins, spoofed headers included.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	peer := remoteIP(r.RemoteAddr)
	if peer == nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !trusted.Contains(peer) {
		return peer.String()
	}

	if hops := forwardedChain(r.Header.Get("X-Forwarded-For")); len(hops) > 0 {
		// Walk from the nearest hop outward; the first address not owned
		// by a trusted proxy is the real client.
		hops = append(hops, peer)
		for i := len(hops) - 1; i >= 0; i-- {
			if !trusted.Contains(hops[i]) {
				return hops[i].String()
			}
		}
		return hops[0].String()
	}

	if real := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); real != nil {
		return real.String()
	}
	return peer.String()
}

func forwardedChain(header string) []net.IP {
	var hops []net.IP
	for _, part := range strings.Split(header, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			hops = append(hops, ip)
		}
	}
	return hops
}

func remoteIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}
