// Package github implements the GitHub REST v3 adapter for repository
// validation: repo metadata, contributor counts, tags, and releases.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/repository/provider"
)

const baseURL = "https://api.github.com"

// Client is a minimal GitHub REST client. Token is optional; an empty
// token means unauthenticated (rate-limited) requests.
type Client struct {
	HTTPClient *http.Client
	Token      string
}

// New returns a Client with sane request timeout defaults.
func New(token string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Token:      token,
	}
}

var _ provider.Client = (*Client)(nil)

type repoResponse struct {
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	OpenIssuesCount int    `json:"open_issues_count"`
	PushedAt        string `json:"pushed_at"`
}

func (c *Client) GetRepoInfo(ctx context.Context, owner, repo string) (provider.RepoInfo, error) {
	var rr repoResponse
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), &rr); err != nil {
		if isNotFound(err) {
			return provider.RepoInfo{Exists: false}, nil
		}
		return provider.RepoInfo{}, err
	}

	openPRs, _ := c.countOpenPulls(ctx, owner, repo)

	return provider.RepoInfo{
		Exists:         true,
		Stars:          rr.StargazersCount,
		Forks:          rr.ForksCount,
		OpenIssues:     rr.OpenIssuesCount,
		OpenPRs:        openPRs,
		LastActivityAt: rr.PushedAt,
	}, nil
}

func (c *Client) countOpenPulls(ctx context.Context, owner, repo string) (int, error) {
	var pulls []struct{}
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&per_page=100", owner, repo)
	if err := c.get(ctx, path, &pulls); err != nil {
		return 0, err
	}
	return len(pulls), nil
}

func (c *Client) GetContributorsCount(ctx context.Context, owner, repo string) (int, error) {
	var contributors []struct{}
	path := fmt.Sprintf("/repos/%s/%s/contributors?per_page=100&anon=1", owner, repo)
	if err := c.get(ctx, path, &contributors); err != nil {
		return 0, err
	}
	return len(contributors), nil
}

func (c *Client) GetReleases(ctx context.Context, owner, repo string) ([]provider.Ref, error) {
	var releases []struct {
		TagName string `json:"tag_name"`
	}
	path := fmt.Sprintf("/repos/%s/%s/releases?per_page=100", owner, repo)
	if err := c.get(ctx, path, &releases); err != nil {
		return nil, err
	}
	refs := make([]provider.Ref, len(releases))
	for i, r := range releases {
		refs[i] = provider.Ref{Name: r.TagName}
	}
	return refs, nil
}

func (c *Client) GetTags(ctx context.Context, owner, repo string) ([]provider.Ref, error) {
	var tags []struct {
		Name string `json:"name"`
	}
	path := fmt.Sprintf("/repos/%s/%s/tags?per_page=100", owner, repo)
	if err := c.get(ctx, path, &tags); err != nil {
		return nil, err
	}
	refs := make([]provider.Ref, len(tags))
	for i, t := range tags {
		refs[i] = provider.Ref{Name: t.Name}
	}
	return refs, nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

func isNotFound(err error) bool {
	_, ok := err.(notFoundErr)
	return ok
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return apperrors.NewParseError("github.request", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("github.get", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return notFoundErr{}
	}
	if resp.StatusCode >= 400 {
		return apperrors.NewNetworkError("github.get", path, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewParseError("github.decode", path, err)
	}
	return nil
}
