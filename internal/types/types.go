// Package types holds the data model shared across the resolver, store,
// and linker: package names, versions, range specifiers, and the resolved
// dependency graph they settle into.
package types

import "fmt"

// DepsDir is the name of the directory a package's own dependency views
// live under, in both the global and the per-project local store.
const DepsDir = "node_modules"

// PackageName is an opaque registry identifier, possibly scoped ("@scope/pkg").
type PackageName string

// VersionID is a semver-style version string. Equality is string equality;
// ordering is left to the selector package, which parses it as semver.
type VersionID string

// RangeSpec is either a semver range ("^1.2", ">=2 <3") or a distribution
// tag name ("latest"). Which one it is isn't known until it's checked
// against a PackageDocument's tags and published versions.
type RangeSpec string

// TarballURL is an absolute URL to a package version's tarball.
type TarballURL string

// Dist carries the subset of a version's "dist" object the core cares about.
type Dist struct {
	Tarball TarballURL
	Shasum  string
}

// VersionRecord is one published version of a package.
type VersionRecord struct {
	Name    PackageName
	Version VersionID
	// Deps preserves declaration order so direct_deps ordering is stable.
	Deps []DepEdge
	Dist Dist
}

// DepEdge is a declared (not yet resolved) dependency edge.
type DepEdge struct {
	Name  PackageName
	Range RangeSpec
}

// PackageDocument is everything the registry knows about one package name.
type PackageDocument struct {
	Name     PackageName
	DistTags map[string]VersionID
	Versions map[VersionID]VersionRecord
}

// ResolvedRef points at a concrete version satisfying a dependency edge.
type ResolvedRef struct {
	Name    PackageName
	Version VersionID
}

// ResolvedNode is a concrete (name, version) with its resolved dependency
// pointers. IsRoot is sticky: once true for a (name, version) pair it never
// reverts to false, even if a later edge resolves to the same pair non-root.
type ResolvedNode struct {
	Version    VersionRecord
	DirectDeps []ResolvedRef
	IsRoot     bool
}

// Key identifies a ResolvedNode by its (name, version) content address.
type Key struct {
	Name    PackageName
	Version VersionID
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.Name, k.Version)
}
