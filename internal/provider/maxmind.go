package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"grimm.is/geoenrich/internal/geo"
)

// MaxMindConfig names the MMDB files backing the primary provider. Only
// CityPath is required. Both MaxMind GeoLite2/GeoIP2 and DB-IP lite files
// use the same format.
type MaxMindConfig struct {
	CityPath      string
	ASNPath       string
	AnonymousPath string
}

// MaxMind is a Primary backed by local MMDB databases.
type MaxMind struct {
	mu        sync.RWMutex
	cfg       MaxMindConfig
	city      *geoip2.Reader
	asn       *geoip2.Reader
	anonymous *geoip2.Reader
}

// OpenMaxMind opens the configured databases.
func OpenMaxMind(cfg MaxMindConfig) (*MaxMind, error) {
	if cfg.CityPath == "" {
		return nil, fmt.Errorf("GeoIP city database path is required")
	}
	m := &MaxMind{cfg: cfg}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func openReader(path string) (*geoip2.Reader, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("GeoIP database not found at %s", path)
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database %s: %w", path, err)
	}
	return r, nil
}

// Reload reopens every database, e.g. after a scheduled download. On error
// the previously loaded readers stay in use.
func (m *MaxMind) Reload() error {
	city, err := openReader(m.cfg.CityPath)
	if err != nil {
		return err
	}
	asn, err := openReader(m.cfg.ASNPath)
	if err != nil {
		city.Close()
		return err
	}
	anon, err := openReader(m.cfg.AnonymousPath)
	if err != nil {
		city.Close()
		if asn != nil {
			asn.Close()
		}
		return err
	}

	m.mu.Lock()
	old := []*geoip2.Reader{m.city, m.asn, m.anonymous}
	m.city, m.asn, m.anonymous = city, asn, anon
	m.mu.Unlock()

	for _, r := range old {
		if r != nil {
			r.Close()
		}
	}
	return nil
}

// Lookup implements Primary. An address missing from the city database is
// reported as no match.
func (m *MaxMind) Lookup(_ context.Context, ip string) (*geo.Record, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid ip address: %s", ip)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.city == nil {
		return nil, ErrNotLoaded
	}

	city, err := m.city.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("lookup failed for %s: %w", ip, err)
	}

	// Auxiliary database failures leave the city answer intact.
	var asn *geoip2.ASN
	if m.asn != nil {
		if a, err := m.asn.ASN(parsed); err == nil {
			asn = a
		}
	}
	var anon *geoip2.AnonymousIP
	if m.anonymous != nil {
		if a, err := m.anonymous.AnonymousIP(parsed); err == nil {
			anon = a
		}
	}
	return recordFromMaxMind(city, asn, anon), nil
}

// recordFromMaxMind maps database answers to a normalized record. asn and
// anon may be nil. A city answer without a country is no match.
func recordFromMaxMind(city *geoip2.City, asn *geoip2.ASN, anon *geoip2.AnonymousIP) *geo.Record {
	if city == nil || city.Country.IsoCode == "" {
		return nil
	}

	rec := &geo.Record{
		Country:     city.Country.Names["en"],
		CountryCode: city.Country.IsoCode,
		Continent:   city.Continent.Names["en"],
		City:        city.City.Names["en"],
		Timezone:    city.Location.TimeZone,
		IsProxy:     city.Traits.IsAnonymousProxy,
	}
	if len(city.Subdivisions) > 0 {
		rec.Region = city.Subdivisions[0].Names["en"]
	}
	if asn != nil {
		rec.ASN = asn.AutonomousSystemNumber
		rec.Organization = asn.AutonomousSystemOrganization
		rec.ISP = asn.AutonomousSystemOrganization
	}
	if anon != nil {
		rec.IsVPN = anon.IsAnonymousVPN
		rec.IsProxy = rec.IsProxy || anon.IsPublicProxy || anon.IsResidentialProxy || anon.IsTorExitNode
		rec.IsCloudProvider = anon.IsHostingProvider
	}
	return Normalize(rec)
}

// Close releases the database resources.
func (m *MaxMind) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, r := range []*geoip2.Reader{m.city, m.asn, m.anonymous} {
		if r != nil {
			errs = append(errs, r.Close())
		}
	}
	m.city, m.asn, m.anonymous = nil, nil, nil
	return errors.Join(errs...)
}

// Config returns the database paths in use.
func (m *MaxMind) Config() MaxMindConfig {
	return m.cfg
}
