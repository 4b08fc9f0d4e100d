package forge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/blackbox-fetch/shipyard/pkg/archive"
	"github.com/blackbox-fetch/shipyard/pkg/semver"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "blackbox-fetch", "blackbox_fetch", "test-token")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func TestCreateRelease(t *testing.T) {
	var got ReleaseRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/blackbox-fetch/blackbox_fetch/releases" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Release{ID: 7, TagName: got.TagName, Name: got.Name, Prerelease: got.Prerelease})
	}))

	rel, err := c.CreateRelease(context.Background(), ReleaseRequest{
		TagName:    "v1.2.4",
		Name:       "blackbox_fetch 1.2.4",
		Body:       "## Changes\n",
		Prerelease: true,
	})
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if rel.ID != 7 {
		t.Fatalf("release id = %d, want 7", rel.ID)
	}
	if !got.Prerelease {
		t.Fatalf("request prerelease = false, want true")
	}
	if got.Name != "blackbox_fetch 1.2.4" {
		t.Fatalf("request name = %q", got.Name)
	}
}

func TestCreateReleaseDuplicateTag(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(errorResponse{Message: "Validation Failed: already_exists"})
	}))

	_, err := c.CreateRelease(context.Background(), ReleaseRequest{TagName: "v1.2.4"})
	if !errors.Is(err, ErrReleaseExists) {
		t.Fatalf("err = %v, want ErrReleaseExists", err)
	}
}

func TestCreateReleaseServerError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{Error: "backend down"})
	}))

	_, err := c.CreateRelease(context.Background(), ReleaseRequest{TagName: "v1.2.4"})
	if err == nil || errors.Is(err, ErrReleaseExists) {
		t.Fatalf("err = %v, want plain failure", err)
	}
}

func TestUploadAsset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blackbox_fetch_1.2.4_linux_amd64.zip")
	if err := os.WriteFile(path, []byte("zip bytes"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	var gotName string
	var gotLen int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/blackbox-fetch/blackbox_fetch/releases/7/assets" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotName = r.URL.Query().Get("name")
		gotLen = r.ContentLength
		w.WriteHeader(http.StatusCreated)
	}))

	a := archive.Archive{
		Platform: "linux_amd64",
		Version:  semver.Version{Major: 1, Minor: 2, Patch: 4},
		Path:     path,
	}
	if err := c.UploadAsset(context.Background(), 7, a); err != nil {
		t.Fatalf("UploadAsset: %v", err)
	}
	if gotName != "blackbox_fetch_1.2.4_linux_amd64.zip" {
		t.Fatalf("asset name = %q", gotName)
	}
	if gotLen != int64(len("zip bytes")) {
		t.Fatalf("content length = %d", gotLen)
	}
}

func TestUploadAssetMissingFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request should be made for a missing asset")
	}))

	a := archive.Archive{Platform: "linux_amd64", Path: "/nonexistent/asset.zip"}
	err := c.UploadAsset(context.Background(), 7, a)
	if !errors.Is(err, archive.ErrMissingArtifact) {
		t.Fatalf("err = %v, want ErrMissingArtifact", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "o", "r", "t"); err == nil {
		t.Fatalf("empty base URL should fail")
	}
	if _, err := NewClient("https://forge.example", "", "r", "t"); err == nil {
		t.Fatalf("empty owner should fail")
	}
	c, err := NewClient("https://forge.example/", "o", "r", "t")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.BaseURL != "https://forge.example" {
		t.Fatalf("base URL not trimmed: %q", c.BaseURL)
	}
}
