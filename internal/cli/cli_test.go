package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fpm-dev/fpm/internal/types"
)

func TestRunNoSubcommand(t *testing.T) {
	err := Run(context.Background(), []string{"fpm"})
	if err == nil {
		t.Fatalf("expected an error when no subcommand is given")
	}
}

func TestRunUnknownSubcommand(t *testing.T) {
	err := Run(context.Background(), []string{"fpm", "publish"})
	if err == nil {
		t.Fatalf("expected an error for an unrecognized subcommand")
	}
}

func TestRootsForPackageArgsDefaultToLatest(t *testing.T) {
	roots, err := rootsFor([]string{"is-number", "@scope/pkg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roots["is-number"] != "latest" || roots["@scope/pkg"] != "latest" {
		t.Fatalf("expected both args resolved at latest, got %+v", roots)
	}
}

func TestRootsFromManifestReadsDependencies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	if err := os.WriteFile(path, []byte(`{"dependencies":{"is-number":"^7.0.0"}}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	old := ManifestPath
	ManifestPath = path
	defer func() { ManifestPath = old }()

	roots, err := rootsFor(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roots["is-number"] != types.RangeSpec("^7.0.0") {
		t.Fatalf("expected is-number: ^7.0.0, got %+v", roots)
	}
}

func TestRootsFromManifestMissingFile(t *testing.T) {
	old := ManifestPath
	ManifestPath = filepath.Join(t.TempDir(), "missing.json")
	defer func() { ManifestPath = old }()

	if _, err := rootsFor(nil); err == nil {
		t.Fatalf("expected an error for a missing manifest")
	}
}

func TestRootsFromManifestRejectsNonStringRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	if err := os.WriteFile(path, []byte(`{"dependencies":{"is-number":7}}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	old := ManifestPath
	ManifestPath = path
	defer func() { ManifestPath = old }()

	if _, err := rootsFor(nil); err == nil {
		t.Fatalf("expected an error for a non-string dependency range")
	}
}
