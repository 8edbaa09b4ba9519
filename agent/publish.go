package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const githubAPI = "https://api.github.com"

// GitHubPublisher opens a pull request with the fix via the GitHub REST
// v3 API: branch off the base, update the file, open the PR.
type GitHubPublisher struct {
	// Token is a GitHub access token with repo scope.
	Token string

	// Repo is "owner/name".
	Repo string

	// BaseBranch is the PR base. Defaults to "main".
	BaseBranch string

	// BaseURL overrides the API endpoint, for GitHub Enterprise and
	// tests. Defaults to api.github.com.
	BaseURL string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Publish implements Publisher.
//
// A failed publish is reported in the result with Status PRFailed; the
// error return is reserved for not being able to talk to GitHub at all.
func (p *GitHubPublisher) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	if p.Token == "" || p.Repo == "" {
		return PublishResult{Status: PRFailed, URL: "github token and repo are required"}, nil
	}

	base := p.BaseBranch
	if base == "" {
		base = "main"
	}
	branch := req.Branch
	if branch == "" {
		branch = fmt.Sprintf("fix/opsmend-%s", time.Now().UTC().Format("20060102-150405"))
	}

	baseSHA, err := p.refSHA(ctx, base)
	if err != nil {
		return PublishResult{Status: PRFailed, URL: err.Error()}, nil
	}
	if err := p.createBranch(ctx, branch, baseSHA); err != nil {
		return PublishResult{Status: PRFailed, URL: err.Error()}, nil
	}
	if err := p.updateFile(ctx, req, base, branch); err != nil {
		return PublishResult{Status: PRFailed, URL: err.Error()}, nil
	}
	prURL, err := p.createPR(ctx, req, base, branch)
	if err != nil {
		return PublishResult{Status: PRFailed, URL: err.Error()}, nil
	}
	return PublishResult{Status: PRCreated, URL: prURL}, nil
}

// refSHA resolves a branch head to its commit SHA.
func (p *GitHubPublisher) refSHA(ctx context.Context, branch string) (string, error) {
	var out struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	path := fmt.Sprintf("/repos/%s/git/ref/heads/%s", p.Repo, branch)
	if err := p.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", fmt.Errorf("failed to resolve branch %s: %w", branch, err)
	}
	return out.Object.SHA, nil
}

func (p *GitHubPublisher) createBranch(ctx context.Context, branch, sha string) error {
	in := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	path := fmt.Sprintf("/repos/%s/git/refs", p.Repo)
	if err := p.call(ctx, http.MethodPost, path, in, nil); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return nil
}

func (p *GitHubPublisher) updateFile(ctx context.Context, req PublishRequest, base, branch string) error {
	// The contents API needs the current blob SHA to replace a file.
	var current struct {
		SHA string `json:"sha"`
	}
	getPath := fmt.Sprintf("/repos/%s/contents/%s?ref=%s", p.Repo, req.FilePath, base)
	if err := p.call(ctx, http.MethodGet, getPath, nil, &current); err != nil {
		return fmt.Errorf("failed to read %s: %w", req.FilePath, err)
	}

	in := map[string]string{
		"message": "Fix: " + req.Title,
		"content": base64.StdEncoding.EncodeToString([]byte(req.FixCode)),
		"sha":     current.SHA,
		"branch":  branch,
	}
	putPath := fmt.Sprintf("/repos/%s/contents/%s", p.Repo, req.FilePath)
	if err := p.call(ctx, http.MethodPut, putPath, in, nil); err != nil {
		return fmt.Errorf("failed to update %s: %w", req.FilePath, err)
	}
	return nil
}

func (p *GitHubPublisher) createPR(ctx context.Context, req PublishRequest, base, branch string) (string, error) {
	in := map[string]string{
		"title": req.Title,
		"body":  req.Body,
		"head":  branch,
		"base":  base,
	}
	var out struct {
		HTMLURL string `json:"html_url"`
	}
	path := fmt.Sprintf("/repos/%s/pulls", p.Repo)
	if err := p.call(ctx, http.MethodPost, path, in, &out); err != nil {
		return "", fmt.Errorf("failed to create pull request: %w", err)
	}
	return out.HTMLURL, nil
}

// call performs one GitHub API request, decoding the response into out
// when out is non-nil.
func (p *GitHubPublisher) call(ctx context.Context, method, path string, in, out interface{}) error {
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = githubAPI
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github API returned %s: %s", resp.Status, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// DryRunPublisher writes the fix to a local file instead of opening a
// pull request. Used when GitHub credentials are not configured and in
// tests.
type DryRunPublisher struct {
	// Dir is where generated fixes are written. Defaults to the
	// current directory.
	Dir string
}

// Publish implements Publisher.
func (p *DryRunPublisher) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}

	name := fmt.Sprintf("generated_fix_%s.go", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(p.Dir, name)
	if err := os.WriteFile(path, []byte(req.FixCode), 0o644); err != nil {
		return PublishResult{Status: PRFailed, URL: fmt.Sprintf("failed to write fix: %v", err)}, nil
	}
	return PublishResult{
		Status: PRCreated,
		URL:    fmt.Sprintf("dry-run: fix written to %s (no pull request opened)", path),
	}, nil
}
