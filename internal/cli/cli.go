// Package cli implements fpm's single subcommand: install.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fpm-dev/fpm/internal/installer"
	"github.com/fpm-dev/fpm/internal/manifest"
	"github.com/fpm-dev/fpm/internal/types"
)

const usage = `
Usage:

  fpm install             install all dependencies from package.json
  fpm install <pkg>...    resolve each <pkg> at "latest" and add it as a root

`

// ManifestPath is the project manifest fpm reads and writes. It is a
// package variable, matching the teacher's configuration style, so tests
// can point it at a fixture.
var ManifestPath = "./package.json"

// StoreRoot is where the content-addressed global store lives.
var StoreRoot = "./node_modules/.fpm-store"

// Run dispatches args[1:] (args[0] is the program name) and returns the
// first fatal error, if any.
func Run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("expected 'install' subcommand%s", usage)
	}

	switch args[1] {
	case "install":
		return runInstall(ctx, args[2:])
	default:
		return fmt.Errorf("unknown subcommand: %s%s", strings.Join(args[1:], " "), usage)
	}
}

func runInstall(ctx context.Context, pkgArgs []string) error {
	roots, err := rootsFor(pkgArgs)
	if err != nil {
		return err
	}

	cfg := installer.Config{
		ProjectRoot:  ".",
		StoreRoot:    StoreRoot,
		ManifestPath: ManifestPath,
	}
	return installer.New(cfg).Install(ctx, roots)
}

// rootsFor returns the root requests for an install invocation: the
// package.json "dependencies" when pkgArgs is empty, or pkgArgs resolved
// at "latest" otherwise.
func rootsFor(pkgArgs []string) (map[types.PackageName]types.RangeSpec, error) {
	if len(pkgArgs) == 0 {
		return rootsFromManifest()
	}

	roots := make(map[types.PackageName]types.RangeSpec, len(pkgArgs))
	for _, arg := range pkgArgs {
		roots[types.PackageName(arg)] = "latest"
	}
	return roots, nil
}

func rootsFromManifest() (map[types.PackageName]types.RangeSpec, error) {
	if _, err := os.Stat(ManifestPath); os.IsNotExist(err) {
		return nil, &types.ManifestError{Path: ManifestPath, Err: err}
	}

	doc, err := manifest.Read(ManifestPath)
	if err != nil {
		return nil, err
	}

	deps, err := manifest.Dependencies(doc)
	if err != nil {
		return nil, &types.ManifestError{Path: ManifestPath, Err: err}
	}

	roots := make(map[types.PackageName]types.RangeSpec, len(deps.Keys()))
	for _, name := range deps.Keys() {
		value, _ := deps.Get(name)
		rng, ok := value.(string)
		if !ok {
			return nil, &types.ManifestError{Path: ManifestPath, Err: fmt.Errorf("dependency %q has a non-string range", name)}
		}
		roots[types.PackageName(name)] = types.RangeSpec(rng)
	}
	return roots, nil
}
