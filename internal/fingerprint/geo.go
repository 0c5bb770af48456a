package fingerprint

import (
	"fmt"
	"net"
	"strconv"

	"github.com/oschwald/maxminddb-golang"
)

// Network holds the geo/ASN/anonymity signals for an IP address.
// Empty fields mean the resolver had no answer.
type Network struct {
	Country string
	City    string
	ASN     string
	ISP     string
	IsProxy bool
	IsTor   bool
}

// Resolver looks up network intelligence for an IP address. Lookups
// are best-effort: an error degrades the fingerprint, it never aborts
// ingestion.
type Resolver interface {
	Lookup(ip string) (Network, error)
}

// MaxMind resolves geo/ASN/anonymity data from local MaxMind database
// files. Any of the three databases may be absent; missing databases
// simply leave their fields empty.
type MaxMind struct {
	city *maxminddb.Reader
	asn  *maxminddb.Reader
	anon *maxminddb.Reader
}

// OpenMaxMind opens the given database files. Empty paths are skipped.
func OpenMaxMind(cityPath, asnPath, anonPath string) (*MaxMind, error) {
	m := &MaxMind{}
	var err error

	if cityPath != "" {
		if m.city, err = maxminddb.Open(cityPath); err != nil {
			return nil, fmt.Errorf("opening city database: %w", err)
		}
	}
	if asnPath != "" {
		if m.asn, err = maxminddb.Open(asnPath); err != nil {
			m.Close()
			return nil, fmt.Errorf("opening ASN database: %w", err)
		}
	}
	if anonPath != "" {
		if m.anon, err = maxminddb.Open(anonPath); err != nil {
			m.Close()
			return nil, fmt.Errorf("opening anonymous-IP database: %w", err)
		}
	}

	return m, nil
}

type cityRecord struct {
	Country struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

type asnRecord struct {
	Number uint   `maxminddb:"autonomous_system_number"`
	Org    string `maxminddb:"autonomous_system_organization"`
}

type anonRecord struct {
	IsAnonymousProxy bool `maxminddb:"is_anonymous_proxy"`
	IsAnonymousVPN   bool `maxminddb:"is_anonymous_vpn"`
	IsTorExitNode    bool `maxminddb:"is_tor_exit_node"`
}

// Lookup implements Resolver.
func (m *MaxMind) Lookup(ip string) (Network, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Network{}, fmt.Errorf("invalid IP address %q", ip)
	}

	var out Network

	if m.city != nil {
		var rec cityRecord
		if err := m.city.Lookup(parsed, &rec); err == nil {
			out.Country = rec.Country.Names["en"]
			out.City = rec.City.Names["en"]
		}
	}
	if m.asn != nil {
		var rec asnRecord
		if err := m.asn.Lookup(parsed, &rec); err == nil && rec.Number != 0 {
			out.ASN = "AS" + strconv.FormatUint(uint64(rec.Number), 10)
			out.ISP = rec.Org
		}
	}
	if m.anon != nil {
		var rec anonRecord
		if err := m.anon.Lookup(parsed, &rec); err == nil {
			out.IsProxy = rec.IsAnonymousProxy || rec.IsAnonymousVPN
			out.IsTor = rec.IsTorExitNode
		}
	}

	return out, nil
}

// Close releases all open database readers.
func (m *MaxMind) Close() error {
	for _, r := range []*maxminddb.Reader{m.city, m.asn, m.anon} {
		if r != nil {
			r.Close()
		}
	}
	return nil
}
