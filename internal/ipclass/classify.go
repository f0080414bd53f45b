// Package ipclass validates and normalizes IP address strings and flags the
// private and reserved ranges that never need geographic enrichment.
package ipclass

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalid is returned for input that is not an IPv4 or IPv6 address.
var ErrInvalid = errors.New("invalid ip address")

// Addr is a classified address.
type Addr struct {
	IP         netip.Addr
	Normalized string
	Private    bool
}

// Is4 reports whether the address is IPv4 (including unmapped IPv4-in-IPv6).
func (a Addr) Is4() bool { return a.IP.Is4() }

// Octets returns the four IPv4 octets. ok is false for IPv6.
func (a Addr) Octets() (octets [4]byte, ok bool) {
	if !a.IP.Is4() {
		return octets, false
	}
	return a.IP.As4(), true
}

// reserved holds private, loopback, link-local, documentation, multicast and
// other special-purpose blocks.
var reserved = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
	"2001:db8::/32",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// Classify parses ip, normalizes it and flags reserved ranges.
func Classify(ip string) (Addr, error) {
	s := strings.TrimSpace(ip)
	if s == "" {
		return Addr{}, fmt.Errorf("%w: empty", ErrInvalid)
	}

	if !strings.Contains(s, ":") {
		v4, err := normalizeV4(s)
		if err != nil {
			return Addr{}, fmt.Errorf("%w: %q", ErrInvalid, ip)
		}
		s = v4
	}

	parsed, err := netip.ParseAddr(s)
	if err != nil {
		return Addr{}, fmt.Errorf("%w: %q", ErrInvalid, ip)
	}
	parsed = parsed.WithZone("").Unmap()

	return Addr{
		IP:         parsed,
		Normalized: parsed.String(),
		Private:    isReserved(parsed),
	}, nil
}

// normalizeV4 accepts dotted-quad input with leading zeros ("010.001.002.003")
// and returns the canonical form. Octets are always read as decimal.
func normalizeV4(s string) (string, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return "", ErrInvalid
	}
	for i, p := range parts {
		if p == "" || len(p) > 3 {
			return "", ErrInvalid
		}
		for j := 0; j < len(p); j++ {
			if p[j] < '0' || p[j] > '9' {
				return "", ErrInvalid
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return "", ErrInvalid
		}
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "."), nil
}

func isReserved(a netip.Addr) bool {
	for _, p := range reserved {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// IsPrivate reports whether ip is malformed or inside a reserved range.
func IsPrivate(ip string) bool {
	a, err := Classify(ip)
	return err != nil || a.Private
}

// IsPublic reports whether ip is a well-formed, globally routable address.
func IsPublic(ip string) bool {
	a, err := Classify(ip)
	return err == nil && !a.Private
}
