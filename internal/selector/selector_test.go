package selector

import (
	"testing"

	"github.com/fpm-dev/fpm/internal/types"
)

func fooDocument() *types.PackageDocument {
	versions := map[types.VersionID]types.VersionRecord{}
	for _, v := range []string{"1.0.0", "1.1.0", "1.1.1", "2.0.0"} {
		versions[types.VersionID(v)] = types.VersionRecord{Name: "foo", Version: types.VersionID(v)}
	}
	return &types.PackageDocument{
		Name:     "foo",
		DistTags: map[string]types.VersionID{"latest": "2.0.0"},
		Versions: versions,
	}
}

func TestSelectRangeHighestMatching(t *testing.T) {
	v, ok := Select(fooDocument(), "^1")
	if !ok {
		t.Fatalf("expected a match")
	}
	if v != "1.1.1" {
		t.Fatalf("expected 1.1.1, got %s", v)
	}
}

func TestSelectTagLatest(t *testing.T) {
	v, ok := Select(fooDocument(), "latest")
	if !ok || v != "2.0.0" {
		t.Fatalf("expected 2.0.0, got %s (ok=%v)", v, ok)
	}
}

func TestSelectUnsatisfiableRange(t *testing.T) {
	doc := &types.PackageDocument{
		Name:     "foo",
		DistTags: map[string]types.VersionID{},
		Versions: map[types.VersionID]types.VersionRecord{
			"1.0.0": {Name: "foo", Version: "1.0.0"},
		},
	}
	_, ok := Select(doc, "^2.0.0")
	if ok {
		t.Fatalf("expected no match")
	}
}

func TestSelectTagFallthrough(t *testing.T) {
	doc := &types.PackageDocument{
		Name:     "bar",
		DistTags: map[string]types.VersionID{"stable": "1.0.0"},
		Versions: map[types.VersionID]types.VersionRecord{
			"1.0.0": {Name: "bar", Version: "1.0.0"},
		},
	}
	_, ok := Select(doc, "latest")
	if ok {
		t.Fatalf("expected no match for missing 'latest' tag")
	}
}

func TestSelectPrereleaseRequiresExplicitAllowance(t *testing.T) {
	doc := &types.PackageDocument{
		Name:     "pre",
		DistTags: map[string]types.VersionID{},
		Versions: map[types.VersionID]types.VersionRecord{
			"1.0.0":       {Name: "pre", Version: "1.0.0"},
			"1.1.0-beta1": {Name: "pre", Version: "1.1.0-beta1"},
		},
	}

	if v, ok := Select(doc, "^1.0.0"); !ok || v != "1.0.0" {
		t.Fatalf("expected ^1.0.0 to skip the pre-release, got %s (ok=%v)", v, ok)
	}

	if v, ok := Select(doc, "^1.1.0-beta1"); !ok || v != "1.1.0-beta1" {
		t.Fatalf("expected an explicit pre-release range to match it, got %s (ok=%v)", v, ok)
	}
}

func TestCacheMemoizes(t *testing.T) {
	c := NewCache()
	if _, ok := c.Get("foo", "^1"); ok {
		t.Fatalf("expected empty cache miss")
	}
	c.Set("foo", "^1", "1.1.1")
	v, ok := c.Get("foo", "^1")
	if !ok || v != "1.1.1" {
		t.Fatalf("expected cached 1.1.1, got %s (ok=%v)", v, ok)
	}
}
