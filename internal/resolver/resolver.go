// Package resolver performs the concurrent, breadth-first dependency graph
// exploration described in the design: starting from a set of root
// (name, range) requests, it fetches package documents, selects concrete
// versions, and closes the resulting graph under reachability.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dominikbraun/graph"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fpm-dev/fpm/internal/selector"
	"github.com/fpm-dev/fpm/internal/types"
)

// DefaultMaxConcurrentFetches bounds simultaneous registry document fetches
// when a Resolver is built with NewResolver.
const DefaultMaxConcurrentFetches = 16

// Client is the subset of registry.Client the resolver depends on.
type Client interface {
	FetchPackage(ctx context.Context, name types.PackageName) (*types.PackageDocument, error)
}

// Result is the closed dependency graph produced by Resolve.
type Result struct {
	// Nodes is keyed by (name, version); every edge's target is also a key.
	Nodes map[types.Key]types.ResolvedNode
	// Graph mirrors Nodes as a directed graph over "name@version" vertices.
	// Cycles are expected and are not an error.
	Graph graph.Graph[string, string]
}

// Roots returns the resolved nodes marked IsRoot, sorted by name for
// deterministic iteration.
func (r *Result) Roots() []types.ResolvedNode {
	var roots []types.ResolvedNode
	for _, n := range r.Nodes {
		if n.IsRoot {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Version.Name < roots[j].Version.Name })
	return roots
}

// Resolver drives the breadth-first traversal.
type Resolver struct {
	client Client
	cache  *selector.Cache
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewResolver builds a Resolver bounding concurrent document fetches to
// maxConcurrentFetches (DefaultMaxConcurrentFetches if <= 0).
func NewResolver(client Client, maxConcurrentFetches int) *Resolver {
	if maxConcurrentFetches <= 0 {
		maxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	return &Resolver{
		client: client,
		cache:  selector.NewCache(),
		sem:    semaphore.NewWeighted(int64(maxConcurrentFetches)),
		logger: slog.Default(),
	}
}

type frontierItem struct {
	name   types.PackageName
	rng    types.RangeSpec
	isRoot bool
}

// Resolve computes the ResolvedSet closed under the dependency relation
// starting from roots. It returns the first fatal error encountered
// (registry failure or unsatisfiable range) and attempts no partial
// resolution in that case.
func (r *Resolver) Resolve(ctx context.Context, roots map[types.PackageName]types.RangeSpec) (*Result, error) {
	docs := make(map[types.PackageName]*types.PackageDocument)
	resolved := make(map[types.Key]types.ResolvedNode)
	depGraph := graph.New(graph.StringHash, graph.Directed())
	// Start each resolution with an empty range index: a cache hit skips
	// enqueuing the dependency, so entries left over from an earlier call
	// would leave edge targets out of this call's Nodes.
	r.cache = selector.NewCache()

	frontier := make([]frontierItem, 0, len(roots))
	for name, rng := range roots {
		frontier = append(frontier, frontierItem{name: name, rng: rng, isRoot: true})
	}
	// Deterministic seed order so fetch waves and test fixtures are stable.
	sort.Slice(frontier, func(i, j int) bool { return frontier[i].name < frontier[j].name })

	for len(frontier) > 0 {
		if err := r.fetchWave(ctx, frontier, docs); err != nil {
			return nil, err
		}

		var next []frontierItem
		for _, item := range frontier {
			doc, ok := docs[item.name]
			if !ok {
				return nil, &types.RegistryError{Name: item.name, Err: fmt.Errorf("document missing after fetch wave")}
			}

			version, ok := r.cache.Get(item.name, item.rng)
			if !ok {
				version, ok = selector.Select(doc, item.rng)
				if !ok {
					return nil, &types.VersionNotFoundError{Name: item.name, Range: item.rng}
				}
				r.cache.Set(item.name, item.rng, version)
			}

			key := types.Key{Name: item.name, Version: version}
			node, exists := resolved[key]
			if !exists {
				node = types.ResolvedNode{
					Version: doc.Versions[version],
					IsRoot:  item.isRoot,
				}
				resolved[key] = node
				if err := depGraph.AddVertex(key.String()); err != nil && err != graph.ErrVertexAlreadyExists {
					return nil, fmt.Errorf("add vertex %s: %w", key, err)
				}

				for _, dep := range node.Version.Deps {
					if _, ok := r.cache.Get(dep.Name, dep.Range); ok {
						continue
					}
					next = append(next, frontierItem{name: dep.Name, rng: dep.Range, isRoot: false})
				}
			} else if item.isRoot && !node.IsRoot {
				node.IsRoot = true
				resolved[key] = node
			}
		}

		frontier = next
	}

	for key, node := range resolved {
		node.DirectDeps = make([]types.ResolvedRef, 0, len(node.Version.Deps))
		for _, dep := range node.Version.Deps {
			depVersion, ok := r.cache.Get(dep.Name, dep.Range)
			if !ok {
				return nil, &types.VersionNotFoundError{Name: dep.Name, Range: dep.Range}
			}
			node.DirectDeps = append(node.DirectDeps, types.ResolvedRef{Name: dep.Name, Version: depVersion})

			depKey := types.Key{Name: dep.Name, Version: depVersion}
			if err := depGraph.AddEdge(key.String(), depKey.String()); err != nil &&
				err != graph.ErrEdgeAlreadyExists {
				return nil, fmt.Errorf("add edge %s -> %s: %w", key, depKey, err)
			}
		}
		resolved[key] = node
	}

	return &Result{Nodes: resolved, Graph: depGraph}, nil
}

// fetchWave launches one concurrent document fetch per distinct package
// name in frontier that isn't already in docs, and waits for the wave to
// complete before returning. Results land in a slice indexed by goroutine,
// not the shared map, so docs is only written back here on the caller's
// goroutine once every fetch in the wave has finished.
func (r *Resolver) fetchWave(ctx context.Context, frontier []frontierItem, docs map[types.PackageName]*types.PackageDocument) error {
	pending := make(map[types.PackageName]struct{})
	for _, item := range frontier {
		if _, ok := docs[item.name]; ok {
			continue
		}
		pending[item.name] = struct{}{}
	}
	if len(pending) == 0 {
		return nil
	}

	names := make([]types.PackageName, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	results := make([]*types.PackageDocument, len(names))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		if err := r.sem.Acquire(groupCtx, 1); err != nil {
			return fmt.Errorf("acquire fetch slot: %w", err)
		}
		group.Go(func() error {
			defer r.sem.Release(1)
			doc, err := r.client.FetchPackage(groupCtx, name)
			if err != nil {
				return err
			}
			results[i] = doc
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	for i, name := range names {
		docs[name] = results[i]
	}
	return nil
}
