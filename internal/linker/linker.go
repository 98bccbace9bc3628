// Package linker materialises a resolved dependency graph on disk: it
// hardlinks each store package into a per-project local store, then wires
// up the dependency view of every package (and the project's top-level
// entries) with symlinks, following the content-addressed layout of
// §3/§4.5 of the design.
package linker

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fpm-dev/fpm/internal/types"
)

// LocalStoreDirName is the per-project directory that mirrors the global
// store's shape, named after this tool so it doesn't collide with anything
// a package itself might publish under node_modules/.
const LocalStoreDirName = ".fpm"

// Linker performs the hardlink and symlink passes against one project.
type Linker struct {
	ProjectRoot string
	StoreRoot   string
	Logger      *slog.Logger
}

// New builds a Linker for a project rooted at projectRoot, sourcing package
// contents from the global store at storeRoot.
func New(projectRoot, storeRoot string) *Linker {
	return &Linker{ProjectRoot: projectRoot, StoreRoot: storeRoot, Logger: slog.Default()}
}

// LocalStoreRoot is {project}/node_modules/.fpm.
func (l *Linker) LocalStoreRoot() string {
	return filepath.Join(l.ProjectRoot, types.DepsDir, LocalStoreDirName)
}

// LocalPackageDir is {project}/node_modules/.fpm/{name}@{version}/node_modules/{name}/.
func (l *Linker) LocalPackageDir(key types.Key) string {
	return filepath.Join(l.LocalStoreRoot(), key.String(), types.DepsDir, string(key.Name))
}

func (l *Linker) globalPackageDir(key types.Key) string {
	return filepath.Join(l.StoreRoot, key.String(), types.DepsDir, string(key.Name))
}

// HardlinkPackage mirrors the file tree at the global store path for key
// into this project's local store, as hardlinks. Directories named
// node_modules are not descended into: those are a package's own
// dependency slot, populated later by SymlinkDependency.
func (l *Linker) HardlinkPackage(key types.Key) error {
	src := l.globalPackageDir(key)
	dst := l.LocalPackageDir(key)

	if err := os.MkdirAll(dst, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return &types.LinkError{Path: dst, Err: err}
	}

	if err := hardlinkTree(src, dst); err != nil {
		return &types.LinkError{Path: dst, Err: err}
	}
	return nil
}

// hardlinkTree recursively hardlinks the contents of src into dst,
// skipping any directory named node_modules.
func hardlinkTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if entry.Name() == types.DepsDir {
				continue
			}
			if err := os.MkdirAll(dstPath, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("mkdir %s: %w", dstPath, err)
			}
			if err := hardlinkTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}
		if err := os.Link(srcPath, dstPath); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("hardlink %s -> %s: %w", srcPath, dstPath, err)
		}
	}
	return nil
}

// SymlinkDependency creates the symlink that lets parent see dep as one of
// its direct dependencies:
//
//	{local}/{parent}/node_modules/{dep.Name} -> {local}/{dep}/node_modules/{dep.Name}
//
// using a relative path so it resolves correctly with the package
// directory as a working directory.
func (l *Linker) SymlinkDependency(parent types.Key, dep types.ResolvedRef) error {
	depKey := types.Key{Name: dep.Name, Version: dep.Version}

	// dep.Name may itself contain a path separator (a scoped package), in
	// which case the link ends up one directory deeper than usual;
	// filepath.Rel accounts for that automatically below.
	link := filepath.Join(l.LocalStoreRoot(), parent.String(), types.DepsDir, string(dep.Name))
	target := l.LocalPackageDir(depKey)

	return l.symlinkRelative(target, link)
}

// SymlinkTopLevel creates the project's top-level entry for a root
// package: {project}/node_modules/{root.Name} -> the root's local-store
// package directory.
func (l *Linker) SymlinkTopLevel(root types.Key) error {
	link := filepath.Join(l.ProjectRoot, types.DepsDir, string(root.Name))
	target := l.LocalPackageDir(root)
	return l.symlinkRelative(target, link)
}

// symlinkRelative creates link -> target, rewriting target as a path
// relative to link's parent directory. AlreadyExists is swallowed.
func (l *Linker) symlinkRelative(target, link string) error {
	linkDir := filepath.Dir(link)
	if err := os.MkdirAll(linkDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return &types.LinkError{Path: link, Err: err}
	}

	rel, err := filepath.Rel(linkDir, target)
	if err != nil {
		return &types.LinkError{Path: link, Err: fmt.Errorf("relative path from %s to %s: %w", linkDir, target, err)}
	}

	if err := os.Symlink(rel, link); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return &types.LinkError{Path: link, Err: err}
	}
	return nil
}
