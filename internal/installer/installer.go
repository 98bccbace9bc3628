// Package installer sequences the resolver, store, linker, and manifest
// updater into the single top-level "install" operation.
package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/sync/errgroup"

	"github.com/fpm-dev/fpm/internal/linker"
	"github.com/fpm-dev/fpm/internal/manifest"
	"github.com/fpm-dev/fpm/internal/registry"
	"github.com/fpm-dev/fpm/internal/resolver"
	"github.com/fpm-dev/fpm/internal/store"
	"github.com/fpm-dev/fpm/internal/types"
)

// Config carries everything an Installer needs beyond the root requests
// themselves.
type Config struct {
	ProjectRoot          string
	StoreRoot            string
	ManifestPath         string
	MaxConcurrentFetches int
	Quiet                bool
}

// Installer chains resolve -> download -> hardlink -> dep-symlink ->
// top-symlink -> manifest update, in that order.
type Installer struct {
	cfg      Config
	client   *registry.Client
	resolver *resolver.Resolver
	store    *store.Store
	linker   *linker.Linker
}

// New builds an Installer from cfg, constructing the registry client and
// every downstream component it drives.
func New(cfg Config) *Installer {
	client := registry.NewClient()
	return &Installer{
		cfg:      cfg,
		client:   client,
		resolver: resolver.NewResolver(client, cfg.MaxConcurrentFetches),
		store:    store.New(cfg.StoreRoot, client),
		linker:   linker.New(cfg.ProjectRoot, cfg.StoreRoot),
	}
}

// Install runs the full sequence for roots, a map of package name to range
// specifier (e.g. "^1.2.0" or "latest"). On any fatal error from a phase,
// subsequent phases do not run.
func (in *Installer) Install(ctx context.Context, roots map[types.PackageName]types.RangeSpec) error {
	var s *spinner.Spinner
	if !in.cfg.Quiet {
		s = spinner.New(spinner.CharSets[9], 100*time.Millisecond)
		s.Suffix = " Resolving dependencies"
		s.Start()
		defer s.Stop()
	}

	result, err := in.resolver.Resolve(ctx, roots)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	if s != nil {
		s.Suffix = " Fetching packages"
	}
	if err := in.downloadAll(ctx, result); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	if s != nil {
		s.Suffix = " Linking packages"
	}
	if err := in.hardlinkAll(result); err != nil {
		return fmt.Errorf("hardlink: %w", err)
	}
	if err := in.symlinkDeps(result); err != nil {
		return fmt.Errorf("symlink dependencies: %w", err)
	}
	if err := in.symlinkRoots(result); err != nil {
		return fmt.Errorf("symlink roots: %w", err)
	}

	if s != nil {
		s.Suffix = " Updating manifest"
	}
	rootVersions := make(map[types.PackageName]types.VersionID, len(result.Roots()))
	for _, node := range result.Roots() {
		rootVersions[node.Version.Name] = node.Version.Version
	}
	if err := manifest.Update(in.cfg.ManifestPath, rootVersions); err != nil {
		return fmt.Errorf("update manifest: %w", err)
	}

	if s != nil {
		s.Stop()
	}
	return nil
}

func (in *Installer) downloadAll(ctx context.Context, result *resolver.Result) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for key, node := range result.Nodes {
		key, node := key, node
		group.Go(func() error {
			return in.store.Write(groupCtx, key.Name, key.Version, node.Version.Dist.Tarball)
		})
	}
	return group.Wait()
}

func (in *Installer) hardlinkAll(result *resolver.Result) error {
	var group errgroup.Group
	for key := range result.Nodes {
		key := key
		group.Go(func() error {
			return in.linker.HardlinkPackage(key)
		})
	}
	return group.Wait()
}

func (in *Installer) symlinkDeps(result *resolver.Result) error {
	var group errgroup.Group
	for key, node := range result.Nodes {
		key, node := key, node
		for _, dep := range node.DirectDeps {
			dep := dep
			group.Go(func() error {
				return in.linker.SymlinkDependency(key, dep)
			})
		}
	}
	return group.Wait()
}

func (in *Installer) symlinkRoots(result *resolver.Result) error {
	var group errgroup.Group
	for _, node := range result.Roots() {
		key := types.Key{Name: node.Version.Name, Version: node.Version.Version}
		group.Go(func() error {
			return in.linker.SymlinkTopLevel(key)
		})
	}
	return group.Wait()
}
