// Package registry fetches package documents and tarballs from a package
// registry (https://registry.npmjs.org/ compatible). It performs no
// retries and no caching; the resolver keeps fetched documents for the
// duration of a resolve.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/iancoleman/orderedmap"

	"github.com/fpm-dev/fpm/internal/types"
)

const (
	// DefaultBaseURL is used when FPM_REGISTRY is unset.
	DefaultBaseURL = "https://registry.npmjs.org/"

	// acceptHeader prefers the registry's compact "install" document and
	// falls back to the full package document.
	acceptHeader = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"

	// registryEnvVar overrides DefaultBaseURL.
	registryEnvVar = "FPM_REGISTRY"
)

// Client fetches package documents and tarballs over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient builds a Client honoring FPM_REGISTRY, falling back to
// DefaultBaseURL.
func NewClient() *Client {
	base := os.Getenv(registryEnvVar)
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		BaseURL:    base,
		HTTPClient: http.DefaultClient,
		Logger:     slog.Default(),
	}
}

// FetchPackage fetches the full published-version set and distribution tags
// for name. Any network failure, non-2xx response, or malformed JSON
// collapses into a single *types.RegistryError.
func (c *Client) FetchPackage(ctx context.Context, name types.PackageName) (*types.PackageDocument, error) {
	u := c.BaseURL + url.PathEscape(string(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &types.RegistryError{Name: name, Err: err}
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Warn("registry fetch failed", "package", string(name), "error", err)
		return nil, &types.RegistryError{Name: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.RegistryError{Name: name, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.RegistryError{Name: name, Err: err}
	}

	var wire wireDocument
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &types.RegistryError{Name: name, Err: fmt.Errorf("malformed package document: %w", err)}
	}

	return wire.toDocument(name), nil
}

// FetchTarball streams the tarball bytes at url. The caller owns
// decompression, extraction, and closing the stream.
func (c *Client) FetchTarball(ctx context.Context, tarball types.TarballURL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(tarball), nil)
	if err != nil {
		return nil, fmt.Errorf("build tarball request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tarball %s: %w", tarball, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch tarball %s: unexpected status %s", tarball, resp.Status)
	}

	return resp.Body, nil
}

// wireDocument mirrors the registry's JSON shape. Unknown fields are
// ignored by encoding/json's default behavior.
type wireDocument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]wireVersionInfo `json:"versions"`
}

type wireVersionInfo struct {
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Dependencies *orderedmap.OrderedMap `json:"dependencies"`
	Dist         wireDist               `json:"dist"`
}

type wireDist struct {
	Tarball string `json:"tarball"`
	Shasum  string `json:"shasum"`
}

func (w *wireDocument) toDocument(name types.PackageName) *types.PackageDocument {
	doc := &types.PackageDocument{
		Name:     name,
		DistTags: make(map[string]types.VersionID, len(w.DistTags)),
		Versions: make(map[types.VersionID]types.VersionRecord, len(w.Versions)),
	}
	for tag, v := range w.DistTags {
		doc.DistTags[tag] = types.VersionID(v)
	}
	for v, info := range w.Versions {
		doc.Versions[types.VersionID(v)] = info.toRecord(name)
	}
	return doc
}

func (w *wireVersionInfo) toRecord(fallbackName types.PackageName) types.VersionRecord {
	rec := types.VersionRecord{
		Name:    types.PackageName(w.Name),
		Version: types.VersionID(w.Version),
		Dist: types.Dist{
			Tarball: types.TarballURL(w.Dist.Tarball),
			Shasum:  w.Dist.Shasum,
		},
	}
	if rec.Name == "" {
		rec.Name = fallbackName
	}
	if w.Dependencies != nil {
		for _, key := range w.Dependencies.Keys() {
			value, _ := w.Dependencies.Get(key)
			rangeStr, ok := value.(string)
			if !ok {
				continue
			}
			rec.Deps = append(rec.Deps, types.DepEdge{
				Name:  types.PackageName(key),
				Range: types.RangeSpec(rangeStr),
			})
		}
	}
	return rec
}
