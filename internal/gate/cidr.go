package gate

import (
	"encoding/binary"
	"net/netip"
	"strconv"
	"strings"
)

// MatchCIDR reports whether ip falls into rule. A rule is either a plain IPv4 address
// (implicit /32) or a.b.c.d/n. Anything malformed, and any IPv6 address, never matches.
func MatchCIDR(ip, rule string) bool {
	candidate, ok := parseIPv4(ip)
	if !ok {
		return false
	}
	network, bits, ok := parseRule(rule)
	if !ok {
		return false
	}
	mask := maskFor(bits)
	return candidate&mask == network&mask
}

// ValidRule reports whether rule can ever match.
func ValidRule(rule string) bool {
	_, _, ok := parseRule(rule)
	return ok
}

func parseRule(rule string) (uint32, int, bool) {
	rule = strings.TrimSpace(rule)
	addr, bitsStr, hasBits := strings.Cut(rule, "/")

	network, ok := parseIPv4(addr)
	if !ok {
		return 0, 0, false
	}
	if !hasBits {
		return network, 32, true
	}
	bits, err := strconv.Atoi(bitsStr)
	if err != nil || bits < 0 || bits > 32 {
		return 0, 0, false
	}
	return network, bits, true
}

func parseIPv4(s string) (uint32, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0, false
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), true
}

func maskFor(bits int) uint32 {
	if bits == 0 {
		return 0
	}
	return ^uint32(0) << (32 - bits)
}
