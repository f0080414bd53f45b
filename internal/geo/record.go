// Package geo defines the geographic record attached to enriched traffic
// and the provenance tags describing which lookup produced it.
package geo

import "strings"

// UnknownCountryCode is the sentinel code for records without a real country.
const UnknownCountryCode = "XX"

// Record is the geographic and risk metadata for one IP address.
//
// Records are shared between the cache and every caller that received them,
// so they must be treated as read-only once built.
type Record struct {
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
	Continent    string `json:"continent"`
	Region       string `json:"region"`
	City         string `json:"city"`
	Timezone     string `json:"timezone"`
	ASN          uint   `json:"asn,omitempty"`
	ISP          string `json:"isp,omitempty"`
	Organization string `json:"organization,omitempty"`

	// RiskScore ranges 0..10; higher means riskier.
	RiskScore float64 `json:"geographic_risk_score"`

	IsVPN           bool `json:"is_vpn"`
	IsProxy         bool `json:"is_proxy"`
	IsCloudProvider bool `json:"is_cloud_provider"`
}

// Known reports whether the record names a real country.
func (r *Record) Known() bool {
	return r != nil && r.CountryCode != "" && r.CountryCode != UnknownCountryCode
}

// NormalizeCountryCode upper-cases a two-letter code. Anything that is not
// exactly two ASCII letters becomes UnknownCountryCode.
func NormalizeCountryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return UnknownCountryCode
	}
	for i := 0; i < 2; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return UnknownCountryCode
		}
	}
	return code
}

// Source identifies where an enrichment result came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceTertiary  Source = "tertiary"
	SourceDefault   Source = "default"
	SourceFailed    Source = "failed"
)

// Sources lists every source in tier order, cache first.
var Sources = []Source{
	SourceCache, SourcePrimary, SourceSecondary, SourceTertiary, SourceDefault, SourceFailed,
}

func (s Source) String() string { return string(s) }
