// github/client.go
package github

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/gewnthar/registers/config"
)

// File is a file read from the repository contents API.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// Client reads and writes files in one repository branch through the
// contents API. Requests carry the configured token.
type Client struct {
	api    *gh.Client
	owner  string
	repo   string
	branch string
}

// NewClient builds a client for cfg.Repo ("owner/name").
func NewClient(ctx context.Context, cfg config.GitHubConfig) (*Client, error) {
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("github repo %q must be owner/name", cfg.Repo)
	}

	var httpClient *http.Client
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	api := gh.NewClient(httpClient)
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api url %q: %w", cfg.APIURL, err)
		}
		api.BaseURL = base
	}
	return &Client{api: api, owner: owner, repo: repo, branch: cfg.Branch}, nil
}

// GetFile returns the file at path, or nil when it does not exist.
func (c *Client) GetFile(ctx context.Context, path string) (*File, error) {
	path = strings.TrimPrefix(path, "/")
	var opts *gh.RepositoryContentGetOptions
	if c.branch != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: c.branch}
	}

	content, _, resp, err := c.api.Repositories.GetContents(ctx, c.owner, c.repo, path, opts)
	if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	if content == nil {
		return nil, fmt.Errorf("failed to get %s: path is a directory", path)
	}

	decoded, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode contents of %s: %w", path, err)
	}
	return &File{Path: content.GetPath(), SHA: content.GetSHA(), Content: []byte(decoded)}, nil
}

// PutFile creates or replaces the file at path. sha must be the current blob
// sha when replacing and empty when creating.
func (c *Client) PutFile(ctx context.Context, path string, content []byte, sha, message string) error {
	path = strings.TrimPrefix(path, "/")
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		Content: content,
	}
	if c.branch != "" {
		opts.Branch = gh.String(c.branch)
	}

	var err error
	if sha == "" {
		_, _, err = c.api.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
	} else {
		opts.SHA = gh.String(sha)
		_, _, err = c.api.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", path, err)
	}
	slog.Info("GitHub: wrote file", "repo", c.owner+"/"+c.repo, "path", path, "bytes", len(content))
	return nil
}

// BlobSHA is the git object id of content, as reported in the sha field of
// the contents API.
func BlobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
