package provider

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"grimm.is/geoenrich/internal/geo"
	"grimm.is/geoenrich/internal/ipclass"
)

// Prefix is one row of the secondary lookup table. Prefix is one or two
// leading IPv4 octets ("52" or "8.8"); two-octet rows win over one-octet rows.
type Prefix struct {
	Prefix       string  `yaml:"prefix"`
	CountryCode  string  `yaml:"country_code"`
	Region       string  `yaml:"region,omitempty"`
	City         string  `yaml:"city,omitempty"`
	ISP          string  `yaml:"isp,omitempty"`
	Organization string  `yaml:"organization,omitempty"`
	ASN          uint    `yaml:"asn,omitempty"`
	Cloud        bool    `yaml:"cloud,omitempty"`
	VPN          bool    `yaml:"vpn,omitempty"`
	Proxy        bool    `yaml:"proxy,omitempty"`
	RiskScore    float64 `yaml:"risk_score,omitempty"`
}

type tableFile struct {
	Prefixes []Prefix `yaml:"prefixes"`
}

// Table is an immutable prefix -> record index.
type Table struct {
	entries map[string]*geo.Record
}

// NewTable builds a table from rows. Later rows replace earlier rows with
// the same prefix.
func NewTable(rows []Prefix) (*Table, error) {
	t := &Table{entries: make(map[string]*geo.Record, len(rows))}
	for _, row := range rows {
		key, err := canonicalPrefix(row.Prefix)
		if err != nil {
			return nil, err
		}
		t.entries[key] = row.record()
	}
	return t, nil
}

// DefaultTable returns the built-in table of cloud, ISP and regional blocks.
func DefaultTable() *Table {
	t, err := NewTable(builtinPrefixes)
	if err != nil {
		panic("provider: invalid built-in prefix table: " + err.Error())
	}
	return t
}

// LoadTableFile reads extra rows from a YAML file of the form
//
//	prefixes:
//	  - prefix: "8.8"
//	    country_code: US
//	    isp: Google
//	    cloud: true
func LoadTableFile(path string) ([]Prefix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prefix table: %w", err)
	}
	var f tableFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse prefix table %s: %w", path, err)
	}
	for _, row := range f.Prefixes {
		if _, err := canonicalPrefix(row.Prefix); err != nil {
			return nil, fmt.Errorf("prefix table %s: %w", path, err)
		}
	}
	return f.Prefixes, nil
}

// Merge returns a new table containing t's rows overlaid with extra.
func (t *Table) Merge(extra []Prefix) (*Table, error) {
	out := &Table{entries: make(map[string]*geo.Record, len(t.entries)+len(extra))}
	for k, v := range t.entries {
		out.entries[k] = v
	}
	for _, row := range extra {
		key, err := canonicalPrefix(row.Prefix)
		if err != nil {
			return nil, err
		}
		out.entries[key] = row.record()
	}
	return out, nil
}

// Len returns the number of prefixes.
func (t *Table) Len() int { return len(t.entries) }

// Match looks up the two-octet key, then the one-octet key.
func (t *Table) Match(o [4]byte) (*geo.Record, bool) {
	if rec, ok := t.entries[strconv.Itoa(int(o[0]))+"."+strconv.Itoa(int(o[1]))]; ok {
		return rec, true
	}
	rec, ok := t.entries[strconv.Itoa(int(o[0]))]
	return rec, ok
}

func canonicalPrefix(p string) (string, error) {
	parts := strings.Split(strings.TrimSuffix(strings.TrimSpace(p), "."), ".")
	if len(parts) == 0 || len(parts) > 2 {
		return "", fmt.Errorf("invalid prefix %q: want one or two octets", p)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return "", fmt.Errorf("invalid prefix %q: bad octet %q", p, part)
		}
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "."), nil
}

func (p Prefix) record() *geo.Record {
	r := Normalize(&geo.Record{
		CountryCode:     p.CountryCode,
		Region:          p.Region,
		City:            p.City,
		ASN:             p.ASN,
		ISP:             p.ISP,
		Organization:    p.Organization,
		RiskScore:       p.RiskScore,
		IsVPN:           p.VPN,
		IsProxy:         p.Proxy,
		IsCloudProvider: p.Cloud,
	})
	if p.RiskScore == 0 && (p.Cloud || p.VPN || p.Proxy) {
		// Hosting and anonymizing networks carry more abuse than the
		// country baseline.
		r.RiskScore = math.Min(10, r.RiskScore+2)
	}
	return r
}

// Secondary matches IPv4 addresses against a prefix table.
type Secondary struct {
	table *Table
}

// NewSecondary wraps t, or the built-in table when t is nil.
func NewSecondary(t *Table) *Secondary {
	if t == nil {
		t = DefaultTable()
	}
	return &Secondary{table: t}
}

// Source implements Tier.
func (s *Secondary) Source() geo.Source { return geo.SourceSecondary }

// Lookup implements Tier.
func (s *Secondary) Lookup(_ context.Context, addr ipclass.Addr) (*geo.Record, error) {
	o, ok := addr.Octets()
	if !ok {
		return nil, nil
	}
	rec, ok := s.table.Match(o)
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

var builtinPrefixes = []Prefix{
	// Amazon Web Services
	{Prefix: "3", CountryCode: "US", ISP: "Amazon", Organization: "Amazon Web Services", ASN: 16509, Cloud: true},
	{Prefix: "13", CountryCode: "US", ISP: "Amazon", Organization: "Amazon Web Services", ASN: 16509, Cloud: true},
	{Prefix: "18", CountryCode: "US", ISP: "Amazon", Organization: "Amazon Web Services", ASN: 16509, Cloud: true},
	{Prefix: "52", CountryCode: "US", ISP: "Amazon", Organization: "Amazon Web Services", ASN: 16509, Cloud: true},
	{Prefix: "54", CountryCode: "US", ISP: "Amazon", Organization: "Amazon Web Services", ASN: 16509, Cloud: true},

	// Google
	{Prefix: "8.8", CountryCode: "US", Region: "California", City: "Mountain View", ISP: "Google", Organization: "Google LLC", ASN: 15169, Cloud: true},
	{Prefix: "8.34", CountryCode: "US", ISP: "Google", Organization: "Google Cloud", ASN: 396982, Cloud: true},
	{Prefix: "8.35", CountryCode: "US", ISP: "Google", Organization: "Google Cloud", ASN: 396982, Cloud: true},
	{Prefix: "34", CountryCode: "US", ISP: "Google", Organization: "Google Cloud", ASN: 396982, Cloud: true},
	{Prefix: "35", CountryCode: "US", ISP: "Google", Organization: "Google Cloud", ASN: 396982, Cloud: true},

	// Microsoft Azure
	{Prefix: "20", CountryCode: "US", ISP: "Microsoft", Organization: "Microsoft Azure", ASN: 8075, Cloud: true},
	{Prefix: "40", CountryCode: "US", ISP: "Microsoft", Organization: "Microsoft Azure", ASN: 8075, Cloud: true},
	{Prefix: "52.160", CountryCode: "US", ISP: "Microsoft", Organization: "Microsoft Azure", ASN: 8075, Cloud: true},

	// Cloudflare
	{Prefix: "1.1", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},
	{Prefix: "1.0", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},
	{Prefix: "104.16", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},
	{Prefix: "104.17", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},
	{Prefix: "104.18", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},
	{Prefix: "104.21", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},
	{Prefix: "162.158", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},
	{Prefix: "172.64", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},
	{Prefix: "172.67", CountryCode: "US", ISP: "Cloudflare", Organization: "Cloudflare, Inc.", ASN: 13335, Cloud: true},

	// DigitalOcean
	{Prefix: "138.197", CountryCode: "US", ISP: "DigitalOcean", Organization: "DigitalOcean, LLC", ASN: 14061, Cloud: true},
	{Prefix: "159.203", CountryCode: "US", ISP: "DigitalOcean", Organization: "DigitalOcean, LLC", ASN: 14061, Cloud: true},
	{Prefix: "167.99", CountryCode: "US", ISP: "DigitalOcean", Organization: "DigitalOcean, LLC", ASN: 14061, Cloud: true},
	{Prefix: "134.209", CountryCode: "US", ISP: "DigitalOcean", Organization: "DigitalOcean, LLC", ASN: 14061, Cloud: true},
	{Prefix: "165.227", CountryCode: "US", ISP: "DigitalOcean", Organization: "DigitalOcean, LLC", ASN: 14061, Cloud: true},

	// Hetzner
	{Prefix: "5.9", CountryCode: "DE", ISP: "Hetzner", Organization: "Hetzner Online GmbH", ASN: 24940, Cloud: true},
	{Prefix: "78.46", CountryCode: "DE", ISP: "Hetzner", Organization: "Hetzner Online GmbH", ASN: 24940, Cloud: true},
	{Prefix: "88.198", CountryCode: "DE", ISP: "Hetzner", Organization: "Hetzner Online GmbH", ASN: 24940, Cloud: true},
	{Prefix: "136.243", CountryCode: "DE", ISP: "Hetzner", Organization: "Hetzner Online GmbH", ASN: 24940, Cloud: true},
	{Prefix: "148.251", CountryCode: "DE", ISP: "Hetzner", Organization: "Hetzner Online GmbH", ASN: 24940, Cloud: true},
	{Prefix: "116.202", CountryCode: "DE", ISP: "Hetzner", Organization: "Hetzner Online GmbH", ASN: 24940, Cloud: true},

	// OVH
	{Prefix: "51.38", CountryCode: "FR", ISP: "OVH", Organization: "OVH SAS", ASN: 16276, Cloud: true},
	{Prefix: "51.68", CountryCode: "FR", ISP: "OVH", Organization: "OVH SAS", ASN: 16276, Cloud: true},
	{Prefix: "54.36", CountryCode: "FR", ISP: "OVH", Organization: "OVH SAS", ASN: 16276, Cloud: true},
	{Prefix: "137.74", CountryCode: "FR", ISP: "OVH", Organization: "OVH SAS", ASN: 16276, Cloud: true},
	{Prefix: "145.239", CountryCode: "FR", ISP: "OVH", Organization: "OVH SAS", ASN: 16276, Cloud: true},
	{Prefix: "158.69", CountryCode: "CA", ISP: "OVH", Organization: "OVH Hosting", ASN: 16276, Cloud: true},

	// Linode / Akamai
	{Prefix: "45.33", CountryCode: "US", ISP: "Linode", Organization: "Akamai Connected Cloud", ASN: 63949, Cloud: true},
	{Prefix: "45.79", CountryCode: "US", ISP: "Linode", Organization: "Akamai Connected Cloud", ASN: 63949, Cloud: true},
	{Prefix: "139.162", CountryCode: "US", ISP: "Linode", Organization: "Akamai Connected Cloud", ASN: 63949, Cloud: true},
	{Prefix: "172.104", CountryCode: "US", ISP: "Linode", Organization: "Akamai Connected Cloud", ASN: 63949, Cloud: true},

	// Vultr
	{Prefix: "45.32", CountryCode: "US", ISP: "Vultr", Organization: "The Constant Company", ASN: 20473, Cloud: true},
	{Prefix: "45.76", CountryCode: "US", ISP: "Vultr", Organization: "The Constant Company", ASN: 20473, Cloud: true},
	{Prefix: "45.77", CountryCode: "US", ISP: "Vultr", Organization: "The Constant Company", ASN: 20473, Cloud: true},
	{Prefix: "149.28", CountryCode: "US", ISP: "Vultr", Organization: "The Constant Company", ASN: 20473, Cloud: true},

	// Oracle Cloud
	{Prefix: "129.146", CountryCode: "US", ISP: "Oracle", Organization: "Oracle Cloud Infrastructure", ASN: 31898, Cloud: true},
	{Prefix: "132.145", CountryCode: "US", ISP: "Oracle", Organization: "Oracle Cloud Infrastructure", ASN: 31898, Cloud: true},
	{Prefix: "150.136", CountryCode: "US", ISP: "Oracle", Organization: "Oracle Cloud Infrastructure", ASN: 31898, Cloud: true},

	// Major ISPs
	{Prefix: "12", CountryCode: "US", ISP: "AT&T", Organization: "AT&T Services", ASN: 7018},
	{Prefix: "73", CountryCode: "US", ISP: "Comcast", Organization: "Comcast Cable Communications", ASN: 7922},
	{Prefix: "98", CountryCode: "US", ISP: "Comcast", Organization: "Comcast Cable Communications", ASN: 7922},
	{Prefix: "71", CountryCode: "US", ISP: "Verizon", Organization: "Verizon Business", ASN: 701},
	{Prefix: "79.192", CountryCode: "DE", ISP: "Deutsche Telekom", Organization: "Deutsche Telekom AG", ASN: 3320},
	{Prefix: "87.128", CountryCode: "DE", ISP: "Deutsche Telekom", Organization: "Deutsche Telekom AG", ASN: 3320},
	{Prefix: "81.128", CountryCode: "GB", ISP: "BT", Organization: "British Telecommunications PLC", ASN: 2856},
	{Prefix: "86.128", CountryCode: "GB", ISP: "BT", Organization: "British Telecommunications PLC", ASN: 2856},
	{Prefix: "90.0", CountryCode: "FR", ISP: "Orange", Organization: "Orange S.A.", ASN: 3215},
	{Prefix: "2.0", CountryCode: "FR", ISP: "Orange", Organization: "Orange S.A.", ASN: 3215},
	{Prefix: "95.24", CountryCode: "RU", ISP: "Rostelecom", Organization: "PJSC Rostelecom", ASN: 12389},
	{Prefix: "113.0", CountryCode: "CN", ISP: "China Telecom", Organization: "Chinanet", ASN: 4134},
	{Prefix: "116.0", CountryCode: "CN", ISP: "China Telecom", Organization: "Chinanet", ASN: 4134},
	{Prefix: "153.0", CountryCode: "JP", ISP: "NTT", Organization: "NTT Communications", ASN: 4713},
	{Prefix: "175.192", CountryCode: "KR", ISP: "Korea Telecom", Organization: "KT Corporation", ASN: 4766},

	// Broad regional blocks
	{Prefix: "177", CountryCode: "BR"},
	{Prefix: "179", CountryCode: "BR"},
	{Prefix: "187", CountryCode: "BR"},
	{Prefix: "189", CountryCode: "BR"},
	{Prefix: "201", CountryCode: "MX"},
	{Prefix: "41", CountryCode: "ZA"},
	{Prefix: "197", CountryCode: "NG"},
	{Prefix: "49", CountryCode: "IN"},
	{Prefix: "106", CountryCode: "CN"},
	{Prefix: "126", CountryCode: "JP"},
}
