// Package tier holds the static membership tier table and the pure
// derivation functions over it. The table is loaded once at process start
// and never mutated.
package tier

import (
	"fmt"
	"sort"
)

// Definition is one membership tier. MinLifetimePoints is the inclusive
// lifetime-earned threshold at which the tier is reached.
type Definition struct {
	Name              string `json:"name"`
	MinLifetimePoints int64  `json:"min_lifetime_points"`
}

// Table is an ordered list of tier definitions, ascending by threshold.
// The first entry must have MinLifetimePoints == 0 so every account matches
// a floor tier.
type Table struct {
	defs []Definition
}

// NewTable validates and orders the given definitions.
func NewTable(defs []Definition) (*Table, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("tier table must have at least one tier")
	}
	ordered := make([]Definition, len(defs))
	copy(ordered, defs)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].MinLifetimePoints < ordered[j].MinLifetimePoints
	})
	if ordered[0].MinLifetimePoints != 0 {
		return nil, fmt.Errorf("lowest tier %q must have min_lifetime_points = 0, got %d",
			ordered[0].Name, ordered[0].MinLifetimePoints)
	}
	seen := make(map[string]bool, len(ordered))
	for i, d := range ordered {
		if d.Name == "" {
			return nil, fmt.Errorf("tier at index %d has empty name", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate tier name %q", d.Name)
		}
		seen[d.Name] = true
		if i > 0 && d.MinLifetimePoints == ordered[i-1].MinLifetimePoints {
			return nil, fmt.Errorf("tiers %q and %q share threshold %d",
				ordered[i-1].Name, d.Name, d.MinLifetimePoints)
		}
	}
	return &Table{defs: ordered}, nil
}

// Default returns the built-in Bronze/Silver/Gold/Platinum table used when
// no TIER_CONFIG file is supplied.
func Default() *Table {
	t, err := NewTable([]Definition{
		{Name: "Bronze", MinLifetimePoints: 0},
		{Name: "Silver", MinLifetimePoints: 500},
		{Name: "Gold", MinLifetimePoints: 2000},
		{Name: "Platinum", MinLifetimePoints: 10000},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Derive returns the highest tier whose threshold is <= lifetimePoints.
// Because the floor tier has threshold 0, there is always a match.
func (t *Table) Derive(lifetimePoints int64) Definition {
	best := t.defs[0]
	for _, d := range t.defs[1:] {
		if d.MinLifetimePoints <= lifetimePoints {
			best = d
		}
	}
	return best
}

// Next returns the tier immediately above the named one, or false if the
// name is the top tier or unknown.
func (t *Table) Next(name string) (Definition, bool) {
	for i, d := range t.defs {
		if d.Name == name {
			if i+1 < len(t.defs) {
				return t.defs[i+1], true
			}
			return Definition{}, false
		}
	}
	return Definition{}, false
}

// PointsToNext returns how many more lifetime points are needed to reach the
// tier above the one lifetimePoints currently earns, or 0 at the top.
func (t *Table) PointsToNext(lifetimePoints int64) int64 {
	next, ok := t.Next(t.Derive(lifetimePoints).Name)
	if !ok {
		return 0
	}
	if d := next.MinLifetimePoints - lifetimePoints; d > 0 {
		return d
	}
	return 0
}

// Definitions returns the ordered tier list.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, len(t.defs))
	copy(out, t.defs)
	return out
}
