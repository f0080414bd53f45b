package provider

import (
	"context"

	"grimm.is/geoenrich/internal/geo"
	"grimm.is/geoenrich/internal/ipclass"
)

// registry is a regional internet registry, or the pre-RIR legacy US
// allocations, with the record used to describe its address space.
type registry struct {
	name   string
	record geo.Record
}

var (
	regARIN = registry{"ARIN", geo.Record{
		Country: "United States", CountryCode: "US", Continent: "North America",
		Region: "ARIN", Timezone: "America/Chicago", RiskScore: 3,
	}}
	regLegacyUS = registry{"Legacy US allocation", geo.Record{
		Country: "United States", CountryCode: "US", Continent: "North America",
		Region: "Legacy US allocation", Timezone: "America/New_York", RiskScore: 3,
	}}
	regLegacyGB = registry{"Legacy UK allocation", geo.Record{
		Country: "United Kingdom", CountryCode: "GB", Continent: "Europe",
		Region: "Legacy UK allocation", Timezone: "Europe/London", RiskScore: 3,
	}}
	regRIPE = registry{"RIPE NCC", geo.Record{
		Country: unknownCountry, CountryCode: geo.UnknownCountryCode, Continent: "Europe",
		Region: "RIPE NCC", Timezone: "Europe/Berlin", RiskScore: 5,
	}}
	regAPNIC = registry{"APNIC", geo.Record{
		Country: unknownCountry, CountryCode: geo.UnknownCountryCode, Continent: "Asia",
		Region: "APNIC", Timezone: "Asia/Singapore", RiskScore: 6,
	}}
	regLACNIC = registry{"LACNIC", geo.Record{
		Country: unknownCountry, CountryCode: geo.UnknownCountryCode, Continent: "South America",
		Region: "LACNIC", Timezone: "America/Sao_Paulo", RiskScore: 6,
	}}
	regAFRINIC = registry{"AFRINIC", geo.Record{
		Country: unknownCountry, CountryCode: geo.UnknownCountryCode, Continent: "Africa",
		Region: "AFRINIC", Timezone: "Africa/Johannesburg", RiskScore: 6,
	}}
)

// allocation maps an inclusive range of first octets to a registry.
type allocation struct {
	lo, hi byte
	reg    *registry
}

// allocations follows the historic IANA IPv4 /8 assignments. Octets not
// listed fall back to ARIN.
var allocations = []allocation{
	{1, 1, &regAPNIC},
	{2, 2, &regRIPE},
	{3, 4, &regLegacyUS},
	{5, 5, &regRIPE},
	{6, 22, &regLegacyUS},
	{23, 24, &regARIN},
	{25, 25, &regLegacyGB},
	{26, 26, &regLegacyUS},
	{27, 27, &regAPNIC},
	{28, 30, &regLegacyUS},
	{31, 31, &regRIPE},
	{32, 35, &regLegacyUS},
	{36, 36, &regAPNIC},
	{37, 37, &regRIPE},
	{38, 38, &regLegacyUS},
	{39, 39, &regAPNIC},
	{40, 40, &regLegacyUS},
	{41, 41, &regAFRINIC},
	{42, 43, &regAPNIC},
	{44, 44, &regLegacyUS},
	{45, 45, &regARIN},
	{46, 46, &regRIPE},
	{47, 48, &regLegacyUS},
	{49, 49, &regAPNIC},
	{50, 50, &regARIN},
	{51, 51, &regLegacyGB},
	{52, 57, &regLegacyUS},
	{58, 61, &regAPNIC},
	{62, 62, &regRIPE},
	{63, 76, &regARIN},
	{77, 95, &regRIPE},
	{96, 100, &regARIN},
	{101, 101, &regAPNIC},
	{102, 102, &regAFRINIC},
	{103, 103, &regAPNIC},
	{104, 104, &regARIN},
	{105, 105, &regAFRINIC},
	{106, 106, &regAPNIC},
	{107, 108, &regARIN},
	{109, 109, &regRIPE},
	{110, 126, &regAPNIC},
	{128, 172, &regLegacyUS},
	{173, 174, &regARIN},
	{175, 175, &regAPNIC},
	{176, 176, &regRIPE},
	{177, 177, &regLACNIC},
	{178, 178, &regRIPE},
	{179, 179, &regLACNIC},
	{180, 180, &regAPNIC},
	{181, 181, &regLACNIC},
	{182, 183, &regAPNIC},
	{184, 184, &regARIN},
	{185, 185, &regRIPE},
	{186, 187, &regLACNIC},
	{188, 188, &regRIPE},
	{189, 191, &regLACNIC},
	{192, 192, &regARIN},
	{193, 195, &regRIPE},
	{196, 197, &regAFRINIC},
	{198, 199, &regARIN},
	{200, 201, &regLACNIC},
	{202, 203, &regAPNIC},
	{204, 209, &regARIN},
	{210, 211, &regAPNIC},
	{212, 213, &regRIPE},
	{214, 215, &regLegacyUS},
	{216, 216, &regARIN},
	{217, 217, &regRIPE},
	{218, 223, &regAPNIC},
}

// registryFor returns the allocation registry for a first octet.
func registryFor(first byte) *registry {
	for i := range allocations {
		if first >= allocations[i].lo && first <= allocations[i].hi {
			return allocations[i].reg
		}
	}
	return &regARIN
}

// Tertiary guesses a region from the first IPv4 octet alone. It matches
// every IPv4 address and never matches IPv6.
type Tertiary struct{}

// Source implements Tier.
func (Tertiary) Source() geo.Source { return geo.SourceTertiary }

// Lookup implements Tier.
func (Tertiary) Lookup(_ context.Context, addr ipclass.Addr) (*geo.Record, error) {
	o, ok := addr.Octets()
	if !ok {
		return nil, nil
	}
	rec := registryFor(o[0]).record
	return &rec, nil
}

// DefaultRecord returns the neutral record used when every tier came up
// empty.
func DefaultRecord() *geo.Record {
	return &geo.Record{
		Country:     unknownCountry,
		CountryCode: geo.UnknownCountryCode,
		Continent:   unknownCountry,
		Region:      unknownCountry,
		City:        unknownCountry,
		Timezone:    "UTC",
		RiskScore:   defaultRisk,
	}
}

// defaultRecord is the record every default-tier outcome shares, so a cached
// default stays recognizable. It must not be modified.
var defaultRecord = DefaultRecord()

// IsDefault reports whether r is the default-tier record.
func IsDefault(r *geo.Record) bool {
	return r != nil && r == defaultRecord
}
