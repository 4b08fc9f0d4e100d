// Package forge is the REST client that creates the release record and
// uploads its archive assets.
package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackbox-fetch/shipyard/pkg/archive"
)

// ErrReleaseExists marks a create rejected because the tag already has a
// release. Publication is attempted exactly once per run, so this is fatal.
var ErrReleaseExists = errors.New("release already exists for tag")

// ReleaseRequest is the payload for creating a release.
type ReleaseRequest struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	Prerelease bool   `json:"prerelease"`
}

// Release is the created release record.
type Release struct {
	ID         int64  `json:"id"`
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Prerelease bool   `json:"prerelease"`
	HTMLURL    string `json:"html_url"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks to one repository on the forge.
type Client struct {
	BaseURL    string
	Owner      string
	Repo       string
	Token      string
	HTTPClient *http.Client
}

// NewClient builds a client; token falls back to the SHIPYARD_TOKEN
// environment variable.
func NewClient(baseURL, owner, repo, token string) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("forge client: base URL is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("forge client: base URL %q: %w", baseURL, err)
	}
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(repo) == "" {
		return nil, fmt.Errorf("forge client: owner and repo are required")
	}
	if strings.TrimSpace(token) == "" {
		token = strings.TrimSpace(os.Getenv("SHIPYARD_TOKEN"))
	}
	return &Client{
		BaseURL:    trimmed,
		Owner:      owner,
		Repo:       repo,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *Client) endpoint(parts ...string) string {
	return c.BaseURL + "/repos/" + c.Owner + "/" + c.Repo + "/" + strings.Join(parts, "/")
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	return c.HTTPClient.Do(req)
}

// readError extracts a usable message from an error response body.
func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(body))
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil {
		if strings.TrimSpace(parsed.Error) != "" {
			msg = strings.TrimSpace(parsed.Error)
		} else if strings.TrimSpace(parsed.Message) != "" {
			msg = strings.TrimSpace(parsed.Message)
		}
	}
	return msg
}

// CreateRelease creates the release record for req. A duplicate tag maps
// to ErrReleaseExists.
func (c *Client) CreateRelease(ctx context.Context, req ReleaseRequest) (*Release, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("create release: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("releases"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create release: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var rel Release
		if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
			return nil, fmt.Errorf("create release: decode response: %w", err)
		}
		return &rel, nil
	}

	msg := readError(resp)
	lower := strings.ToLower(msg)
	if resp.StatusCode == http.StatusUnprocessableEntity ||
		(strings.Contains(lower, "already") && strings.Contains(lower, "exist")) {
		return nil, fmt.Errorf("create release %q: %w: %s", req.TagName, ErrReleaseExists, msg)
	}
	return nil, fmt.Errorf("create release %q: forge returned %d: %s", req.TagName, resp.StatusCode, msg)
}

// UploadAsset attaches one archive to a release. The archive file must
// exist; a declared-but-missing asset aborts the publish.
func (c *Client) UploadAsset(ctx context.Context, releaseID int64, a archive.Archive) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("upload asset %q: %w: %v", a.Path, archive.ErrMissingArtifact, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("upload asset %q: %w", a.Path, err)
	}

	name := filepath.Base(a.Path)
	endpoint := fmt.Sprintf("%s?name=%s", c.endpoint("releases", fmt.Sprint(releaseID), "assets"), url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return fmt.Errorf("upload asset %q: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/zip")
	req.ContentLength = info.Size()

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("upload asset %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload asset %q: forge returned %d: %s", name, resp.StatusCode, readError(resp))
	}
	return nil
}
