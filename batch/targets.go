package batch

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/synqronlabs/mxprobe"
	"github.com/synqronlabs/mxprobe/dns"
)

// TargetEntry is one mail exchanger of a domain as written in the target
// document.
type TargetEntry struct {
	Hostname   string   `yaml:"hostname"`
	Preference int      `yaml:"preference"`
	IPs        []string `yaml:"ips"`
}

// TargetDocument maps a domain to its mail exchangers.
type TargetDocument map[string][]TargetEntry

// LoadTargets reads mx_target.yaml at path.
func LoadTargets(path string) (TargetDocument, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTargets(f, path)
}

// ParseTargets decodes a target document:
//
//	163.com:
//	  - hostname: mx1.163.com
//	    preference: 10
//	    ips: [1.1.1.1, 1.1.1.2]
func ParseTargets(r io.Reader, file string) (TargetDocument, error) {
	var doc TargetDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return TargetDocument{}, nil
		}
		return nil, &Error{File: file, Msg: err.Error()}
	}
	return doc, nil
}

// Records flattens the document into one record per IPv4 address.
//
// Addresses that are not IPv4 literals are dropped, as are entries whose
// hostname is missing or not a valid domain name. Domains are normalized;
// a domain that is not its own registrable domain is kept but logged.
func (d TargetDocument) Records(logger *slog.Logger) []mxprobe.TargetRecord {
	if logger == nil {
		logger = slog.Default()
	}

	domains := make([]string, 0, len(d))
	for domain := range d {
		domains = append(domains, domain)
	}
	slices.Sort(domains)

	var records []mxprobe.TargetRecord
	for _, raw := range domains {
		domain := dns.Normalize(raw)
		if !dns.ValidDomain(domain) {
			logger.Warn("dropping invalid target domain", slog.String("domain", raw))
			continue
		}
		if !dns.IsRegistrable(domain) {
			logger.Warn("target domain is not a registrable domain", slog.String("domain", domain))
		}

		for _, entry := range d[raw] {
			hostname := dns.Normalize(entry.Hostname)
			if !dns.ValidDomain(hostname) {
				logger.Debug("dropping MX entry without valid hostname",
					slog.String("domain", domain),
					slog.String("hostname", entry.Hostname),
				)
				continue
			}
			for _, ip := range entry.IPs {
				addr, err := dns.ParseIPv4(ip)
				if err != nil {
					logger.Debug("dropping non-IPv4 address",
						slog.String("hostname", hostname),
						slog.String("ip", strings.TrimSpace(ip)),
					)
					continue
				}
				records = append(records, mxprobe.TargetRecord{
					Domain:     domain,
					Hostname:   hostname,
					Preference: entry.Preference,
					IP:         addr,
				})
			}
		}
	}
	return records
}
