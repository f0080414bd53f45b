package provider

import (
	"context"
	"fmt"
	"time"

	"grimm.is/geoenrich/internal/geo"
	"grimm.is/geoenrich/internal/ipclass"
)

// TierError records a failed tier attempt. Failed tiers are skipped, not
// fatal.
type TierError struct {
	Tier geo.Source
	Err  error
}

func (e TierError) Error() string {
	return fmt.Sprintf("%s tier: %v", e.Tier, e.Err)
}

func (e TierError) Unwrap() error { return e.Err }

// Outcome is the result of walking the chain for one address.
type Outcome struct {
	Record   *geo.Record
	Source   geo.Source
	Failures []TierError
}

// Option configures a Chain.
type Option func(*Chain)

// WithSecondaryTable replaces the built-in prefix table.
func WithSecondaryTable(t *Table) Option {
	return func(c *Chain) {
		if t != nil {
			c.secondary = t
		}
	}
}

// WithPrimaryTimeout bounds each primary lookup. Zero disables the bound.
func WithPrimaryTimeout(d time.Duration) Option {
	return func(c *Chain) { c.timeout = d }
}

// Chain resolves addresses through the primary, secondary, tertiary and
// default tiers in that order. It is safe for concurrent use.
type Chain struct {
	primary   Primary
	secondary *Table
	timeout   time.Duration

	tiers []Tier
}

// NewChain builds a chain around primary. A nil primary is allowed; the
// chain then starts at the secondary tier.
func NewChain(primary Primary, opts ...Option) *Chain {
	c := &Chain{primary: primary}
	for _, opt := range opts {
		opt(c)
	}
	if c.secondary == nil {
		c.secondary = DefaultTable()
	}

	if primary != nil {
		c.tiers = append(c.tiers, &primaryTier{p: primary, timeout: c.timeout})
	}
	c.tiers = append(c.tiers, NewSecondary(c.secondary), Tertiary{})
	return c
}

// Resolve walks every tier for addr. The first tier returning a record wins.
// When every tier comes up empty the shared default record is returned.
func (c *Chain) Resolve(ctx context.Context, addr ipclass.Addr) Outcome {
	return c.resolve(ctx, addr, true)
}

// ResolvePrimary consults the primary tier alone. An empty answer yields a
// nil record with SourceFailed. Callers choose between the two walks; the
// chain holds no fallback setting of its own.
func (c *Chain) ResolvePrimary(ctx context.Context, addr ipclass.Addr) Outcome {
	return c.resolve(ctx, addr, false)
}

func (c *Chain) resolve(ctx context.Context, addr ipclass.Addr, fallback bool) Outcome {
	var out Outcome
	for _, t := range c.tiers {
		if !fallback && t.Source() != geo.SourcePrimary {
			break
		}
		rec, err := safeLookup(ctx, t, addr)
		if err != nil {
			out.Failures = append(out.Failures, TierError{Tier: t.Source(), Err: err})
			continue
		}
		if rec != nil {
			out.Record = rec
			out.Source = t.Source()
			return out
		}
	}

	if !fallback {
		out.Source = geo.SourceFailed
		return out
	}
	out.Record = defaultRecord
	out.Source = geo.SourceDefault
	return out
}

func safeLookup(ctx context.Context, t Tier, addr ipclass.Addr) (rec *geo.Record, err error) {
	defer func() {
		if v := recover(); v != nil {
			rec, err = nil, &PanicError{Value: v}
		}
	}()
	return t.Lookup(ctx, addr)
}

// primaryTier adapts a Primary to the Tier interface, normalizing its
// records and applying the optional timeout.
type primaryTier struct {
	p       Primary
	timeout time.Duration
}

func (t *primaryTier) Source() geo.Source { return geo.SourcePrimary }

func (t *primaryTier) Lookup(ctx context.Context, addr ipclass.Addr) (*geo.Record, error) {
	if t.timeout <= 0 {
		rec, err := t.p.Lookup(ctx, addr.Normalized)
		if err != nil {
			return nil, err
		}
		return Normalize(rec), nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		rec *geo.Record
		err error
	}
	// Buffered so a provider that ignores ctx can still finish and exit.
	ch := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if v := recover(); v != nil {
				r = result{err: &PanicError{Value: v}}
			}
			ch <- r
		}()
		r.rec, r.err = t.p.Lookup(ctx, addr.Normalized)
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return Normalize(r.rec), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("primary lookup for %s: %w", addr.Normalized, ctx.Err())
	}
}
