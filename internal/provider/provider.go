// Package provider implements the ordered lookup tiers that turn a public IP
// into a geographic record: an accurate primary source, a static prefix
// table, a coarse allocation-registry guess and a fixed neutral default.
package provider

import (
	"context"
	"errors"
	"fmt"

	"grimm.is/geoenrich/internal/geo"
	"grimm.is/geoenrich/internal/ipclass"
)

// ErrNotLoaded is returned by providers whose backing data is not open.
var ErrNotLoaded = errors.New("provider data not loaded")

// Primary is the accurate, external geolocation source. A nil record with a
// nil error means the source has no data for ip. A zero RiskScore means the
// source has no opinion; the country baseline is filled in by Normalize, so
// a primary cannot report a score of exactly 0.
type Primary interface {
	Lookup(ctx context.Context, ip string) (*geo.Record, error)
}

// Func adapts a plain lookup function to Primary.
type Func func(ctx context.Context, ip string) (*geo.Record, error)

// Lookup calls f.
func (f Func) Lookup(ctx context.Context, ip string) (*geo.Record, error) {
	return f(ctx, ip)
}

// Tier is one step of the fallback chain.
type Tier interface {
	Source() geo.Source
	Lookup(ctx context.Context, addr ipclass.Addr) (*geo.Record, error)
}

// PanicError reports a panic recovered inside a tier.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("provider panic: %v", e.Value)
}

// Normalize returns a copy of r with the country code upper-cased and the
// country name, continent, timezone and risk score filled from the static
// tables where the source left them empty. A RiskScore of 0 counts as
// empty. A nil input returns nil.
func Normalize(r *geo.Record) *geo.Record {
	if r == nil {
		return nil
	}
	out := *r
	out.CountryCode = geo.NormalizeCountryCode(out.CountryCode)

	info, known := countries[out.CountryCode]
	if out.Country == "" {
		if known {
			out.Country = info.Name
		} else {
			out.Country = unknownCountry
		}
	}
	if out.Continent == "" {
		if known {
			out.Continent = continentNames[info.Continent]
		} else {
			out.Continent = unknownCountry
		}
	}
	if out.Timezone == "" && known {
		out.Timezone = info.Timezone
	}
	if out.RiskScore == 0 {
		out.RiskScore = RiskScore(out.CountryCode)
	}
	return &out
}
