// Package manifest reads and rewrites the project's package.json,
// merging newly installed root packages into its "dependencies" object in
// one batched update.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/iancoleman/orderedmap"

	"github.com/fpm-dev/fpm/internal/types"
)

// DependenciesKey is the manifest field this package reads and writes.
const DependenciesKey = "dependencies"

// Read parses path as a JSON object, preserving field order.
func Read(path string) (*orderedmap.OrderedMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ManifestError{Path: path, Err: err}
	}

	doc := orderedmap.New()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, &types.ManifestError{Path: path, Err: fmt.Errorf("not a JSON object: %w", err)}
	}
	return doc, nil
}

// Dependencies returns doc's "dependencies" object, creating an empty one
// if absent.
func Dependencies(doc *orderedmap.OrderedMap) (*orderedmap.OrderedMap, error) {
	return dependenciesOf(doc)
}

// Update merges roots into path's "dependencies" object, one entry per
// root at range "^{version}", and writes the manifest back pretty-printed.
// Other manifest fields are left untouched.
func Update(path string, roots map[types.PackageName]types.VersionID) error {
	doc, err := Read(path)
	if err != nil {
		return err
	}

	deps, err := dependenciesOf(doc)
	if err != nil {
		return &types.ManifestError{Path: path, Err: err}
	}

	for name, version := range roots {
		deps.Set(string(name), fmt.Sprintf("^%s", version))
	}

	sorted := orderedmap.New()
	keys := deps.Keys()
	sort.Strings(keys)
	for _, key := range keys {
		value, _ := deps.Get(key)
		sorted.Set(key, value)
	}
	doc.Set(DependenciesKey, sorted)

	return write(path, doc)
}

func dependenciesOf(doc *orderedmap.OrderedMap) (*orderedmap.OrderedMap, error) {
	raw, ok := doc.Get(DependenciesKey)
	if !ok {
		deps := orderedmap.New()
		doc.Set(DependenciesKey, deps)
		return deps, nil
	}

	switch v := raw.(type) {
	case orderedmap.OrderedMap:
		return &v, nil
	case *orderedmap.OrderedMap:
		return v, nil
	default:
		return nil, fmt.Errorf("%q is not an object: %T", DependenciesKey, raw)
	}
}

func write(path string, doc *orderedmap.OrderedMap) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return &types.ManifestError{Path: path, Err: err}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return &types.ManifestError{Path: path, Err: err}
	}
	return nil
}
