// Package store downloads and extracts package tarballs into the
// content-addressed global store, once per (name, version).
package store

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fpm-dev/fpm/internal/types"
)

// Fetcher is the subset of registry.Client the store needs.
type Fetcher interface {
	FetchTarball(ctx context.Context, url types.TarballURL) (io.ReadCloser, error)
}

// Store writes resolved packages into STORE_ROOT/{name}@{version}/node_modules/{name}/.
type Store struct {
	Root    string
	Fetcher Fetcher
	Logger  *slog.Logger
}

// New builds a Store rooted at root.
func New(root string, fetcher Fetcher) *Store {
	return &Store{Root: root, Fetcher: fetcher, Logger: slog.Default()}
}

// PackageDir returns the canonical store directory for (name, version):
// {root}/{name}@{version}/node_modules/{name}/.
func (s *Store) PackageDir(name types.PackageName, version types.VersionID) string {
	return filepath.Join(s.Root, contentAddress(name, version), types.DepsDir, string(name))
}

// Write downloads and extracts the tarball at url into the store directory
// for (name, version), unless that directory already exists and is
// non-empty, in which case it returns immediately (§4.4 idempotency).
func (s *Store) Write(ctx context.Context, name types.PackageName, version types.VersionID, url types.TarballURL) error {
	dest := s.PackageDir(name, version)

	nonEmpty, err := dirNonEmpty(dest)
	if err != nil {
		return &types.StoreWriteError{Name: name, Version: version, Err: err}
	}
	if nonEmpty {
		return nil
	}

	body, err := s.Fetcher.FetchTarball(ctx, url)
	if err != nil {
		return &types.StoreWriteError{Name: name, Version: version, Err: err}
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &types.StoreWriteError{Name: name, Version: version, Err: err}
	}

	// Extract into a sibling temp directory and rename into place so a
	// failure mid-extraction never leaves a partially-populated package
	// directory visible under its final name.
	tmp, err := os.MkdirTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return &types.StoreWriteError{Name: name, Version: version, Err: err}
	}
	defer os.RemoveAll(tmp)

	if err := extractTarball(body, tmp); err != nil {
		return &types.StoreWriteError{Name: name, Version: version, Err: err}
	}

	if err := os.Rename(tmp, dest); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return &types.StoreWriteError{Name: name, Version: version, Err: err}
	}

	s.Logger.Debug("wrote package to store", "package", string(name), "version", string(version))
	return nil
}

func contentAddress(name types.PackageName, version types.VersionID) string {
	return fmt.Sprintf("%s@%s", name, version)
}

func dirNonEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

// extractTarball gunzips and untars body into destDir, stripping the
// leading "package/" path component the registry applies to every entry.
func extractTarball(body io.Reader, destDir string) error {
	gzr, err := gzip.NewReader(body)
	if err != nil {
		return fmt.Errorf("gunzip: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "package/")
		if name == "" {
			continue
		}
		path := filepath.Join(destDir, name)
		if !strings.HasPrefix(path, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("tar entry escapes destination: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("mkdir %s: %w", path, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
			}
			if err := writeFile(tr, path, header); err != nil {
				return err
			}
		default:
			// Symlinks and other non-regular entries in package tarballs
			// are rare and not needed for install correctness; skip them.
		}
	}
}

func writeFile(r io.Reader, path string, header *tar.Header) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
