// Package selector picks a concrete version from a package's published
// version set given a range specifier or a distribution tag.
package selector

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/fpm-dev/fpm/internal/types"
)

// Select returns the version of doc that range satisfies, or false if none
// does. A range that parses as a valid semver constraint is applied against
// the published versions in descending precedence order; a range that
// fails to parse is treated as a distribution tag instead.
func Select(doc *types.PackageDocument, rng types.RangeSpec) (types.VersionID, bool) {
	constraint, err := semver.NewConstraint(string(rng))
	if err != nil {
		return selectTag(doc, rng)
	}

	versions := make([]*semver.Version, 0, len(doc.Versions))
	byParsed := make(map[*semver.Version]types.VersionID, len(doc.Versions))
	for id := range doc.Versions {
		v, err := semver.NewVersion(string(id))
		if err != nil {
			continue
		}
		versions = append(versions, v)
		byParsed[v] = id
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].GreaterThan(versions[j])
	})

	for _, v := range versions {
		if constraint.Check(v) {
			return byParsed[v], true
		}
	}
	return "", false
}

func selectTag(doc *types.PackageDocument, rng types.RangeSpec) (types.VersionID, bool) {
	id, ok := doc.DistTags[string(rng)]
	if !ok {
		return "", false
	}
	if _, exists := doc.Versions[id]; !exists {
		return "", false
	}
	return id, true
}

// Cache memoises Select results per (PackageName, RangeSpec) pair so that
// multiple dependents requesting the same range reuse the same concrete
// version. It is the RangeIndex of the resolver's spec.
type Cache struct {
	mu   sync.Mutex
	data map[types.PackageName]map[types.RangeSpec]types.VersionID
}

// NewCache builds an empty Cache.
func NewCache() *Cache {
	return &Cache{data: make(map[types.PackageName]map[types.RangeSpec]types.VersionID)}
}

// Get returns a previously recorded resolution for (name, rng).
func (c *Cache) Get(name types.PackageName, rng types.RangeSpec) (types.VersionID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byRange, ok := c.data[name]
	if !ok {
		return "", false
	}
	v, ok := byRange[rng]
	return v, ok
}

// Set records that (name, rng) resolved to v.
func (c *Cache) Set(name types.PackageName, rng types.RangeSpec, v types.VersionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byRange, ok := c.data[name]
	if !ok {
		byRange = make(map[types.RangeSpec]types.VersionID)
		c.data[name] = byRange
	}
	byRange[rng] = v
}

// Versions returns the chosen version for every range recorded for name, in
// no particular order.
func (c *Cache) Versions(name types.PackageName) map[types.RangeSpec]types.VersionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[types.RangeSpec]types.VersionID, len(c.data[name]))
	for k, v := range c.data[name] {
		out[k] = v
	}
	return out
}
