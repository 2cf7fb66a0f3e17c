package mxprobe

import (
	"cmp"
	"net"
	"net/netip"
	"slices"
	"strconv"
)

// TargetRecord is one resolved destination: a single IPv4 address of one
// mail exchanger of a domain.
type TargetRecord struct {
	Domain     string
	Hostname   string
	Preference int // lower is more preferred
	IP         netip.Addr
}

// Addr returns the dial address of the record on port.
func (r TargetRecord) Addr(port int) string {
	return net.JoinHostPort(r.IP.String(), strconv.Itoa(port))
}

// String returns "domain hostname (ip)".
func (r TargetRecord) String() string {
	return r.Domain + " " + r.Hostname + " (" + r.IP.String() + ")"
}

// CompareTargets orders records by domain, preference, hostname and IP.
// IPs compare by their text form, so "1.1.1.10" sorts before "1.1.1.9".
func CompareTargets(a, b TargetRecord) int {
	return cmp.Or(
		cmp.Compare(a.Domain, b.Domain),
		cmp.Compare(a.Preference, b.Preference),
		cmp.Compare(a.Hostname, b.Hostname),
		cmp.Compare(a.IP.String(), b.IP.String()),
	)
}

// SortTargets returns a sorted copy of records. The order only depends on
// the set of records, never on their input order.
func SortTargets(records []TargetRecord) []TargetRecord {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, CompareTargets)
	return sorted
}
