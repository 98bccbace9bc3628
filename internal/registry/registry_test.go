package registry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fpm-dev/fpm/internal/types"
)

func TestFetchPackageParsesDistTagsAndDependencies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != acceptHeader {
			t.Errorf("unexpected Accept header: %s", got)
		}
		io.WriteString(w, `{
			"name": "is-number",
			"dist-tags": {"latest": "7.0.0"},
			"versions": {
				"7.0.0": {
					"name": "is-number",
					"version": "7.0.0",
					"dependencies": {"b": "^1.0.0", "a": "^2.0.0"},
					"dist": {"tarball": "https://example.test/is-number-7.0.0.tgz", "shasum": "deadbeef"}
				}
			}
		}`)
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL + "/", HTTPClient: srv.Client()}
	doc, err := client.FetchPackage(context.Background(), "is-number")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.DistTags["latest"] != "7.0.0" {
		t.Fatalf("expected latest dist-tag 7.0.0, got %+v", doc.DistTags)
	}

	record, ok := doc.Versions["7.0.0"]
	if !ok {
		t.Fatalf("expected version 7.0.0 in document")
	}
	if len(record.Deps) != 2 || record.Deps[0].Name != "b" || record.Deps[1].Name != "a" {
		t.Fatalf("expected dependency declaration order preserved, got %+v", record.Deps)
	}
	if record.Dist.Tarball != "https://example.test/is-number-7.0.0.tgz" {
		t.Fatalf("unexpected tarball url: %s", record.Dist.Tarball)
	}
}

func TestFetchPackageNon2xxIsRegistryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL + "/", HTTPClient: srv.Client()}
	_, err := client.FetchPackage(context.Background(), "missing-pkg")
	if err == nil {
		t.Fatalf("expected an error for a 404 response")
	}
	var regErr *types.RegistryError
	if castErr, ok := err.(*types.RegistryError); !ok {
		t.Fatalf("expected *types.RegistryError, got %T", err)
	} else {
		regErr = castErr
	}
	if regErr.Name != "missing-pkg" {
		t.Fatalf("expected error to carry the package name, got %s", regErr.Name)
	}
}

func TestFetchPackageMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL + "/", HTTPClient: srv.Client()}
	_, err := client.FetchPackage(context.Background(), "broken")
	if err == nil {
		t.Fatalf("expected an error for a malformed document")
	}
}

func TestFetchTarballStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "tarball-bytes")
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL + "/", HTTPClient: srv.Client()}
	body, err := client.FetchTarball(context.Background(), types.TarballURL(srv.URL+"/is-number-7.0.0.tgz"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "tarball-bytes" {
		t.Fatalf("unexpected tarball body: %s", data)
	}
}

func TestFetchTarballNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL + "/", HTTPClient: srv.Client()}
	_, err := client.FetchTarball(context.Background(), types.TarballURL(srv.URL+"/broken.tgz"))
	if err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}
