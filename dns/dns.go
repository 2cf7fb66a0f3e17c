package dns

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/publicsuffix"
)

var (
	ErrInvalidDomain = errors.New("dns: invalid domain name")
	ErrNotIPv4       = errors.New("dns: not an IPv4 address")
)

// Normalize returns name in lower case without the trailing root dot.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." {
		return ""
	}
	return strings.TrimSuffix(dns.CanonicalName(name), ".")
}

// ValidDomain reports whether name is a syntactically valid domain name
// with at least two labels.
func ValidDomain(name string) bool {
	if name == "" {
		return false
	}
	labels, ok := dns.IsDomainName(name)
	return ok && labels >= 2
}

// RegistrableDomain returns the eTLD+1 of name using the Public Suffix List.
func RegistrableDomain(name string) (string, error) {
	name = Normalize(name)
	if !ValidDomain(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, name)
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	return etld1, nil
}

// IsRegistrable reports whether name is its own registrable domain, as mail
// domains usually are ("163.com", not "mx.163.com" or "com").
func IsRegistrable(name string) bool {
	etld1, err := RegistrableDomain(name)
	return err == nil && etld1 == Normalize(name)
}

// ParseIPv4 parses an IPv4 literal. IPv6 and IPv4-mapped IPv6 literals are
// rejected.
func ParseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrNotIPv4, s)
	}
	return addr, nil
}
