// Package gitlab implements the GitLab REST v4 adapter for repository
// validation.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/repository/provider"
)

const baseURL = "https://gitlab.com/api/v4"

// Client is a minimal GitLab REST client.
type Client struct {
	HTTPClient *http.Client
	Token      string
}

func New(token string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Token:      token,
	}
}

var _ provider.Client = (*Client)(nil)

type projectResponse struct {
	StarCount      int    `json:"star_count"`
	ForksCount     int    `json:"forks_count"`
	OpenIssues     int    `json:"open_issues_count"`
	LastActivityAt string `json:"last_activity_at"`
}

func projectID(owner, repo string) string {
	return url.PathEscape(owner + "/" + repo)
}

func (c *Client) GetRepoInfo(ctx context.Context, owner, repo string) (provider.RepoInfo, error) {
	var pr projectResponse
	if err := c.get(ctx, "/projects/"+projectID(owner, repo), &pr); err != nil {
		if isNotFound(err) {
			return provider.RepoInfo{Exists: false}, nil
		}
		return provider.RepoInfo{}, err
	}

	openPRs, _ := c.countOpenMergeRequests(ctx, owner, repo)

	return provider.RepoInfo{
		Exists:         true,
		Stars:          pr.StarCount,
		Forks:          pr.ForksCount,
		OpenIssues:     pr.OpenIssues,
		OpenPRs:        openPRs,
		LastActivityAt: pr.LastActivityAt,
	}, nil
}

func (c *Client) countOpenMergeRequests(ctx context.Context, owner, repo string) (int, error) {
	var mrs []struct{}
	path := "/projects/" + projectID(owner, repo) + "/merge_requests?state=opened&per_page=100"
	if err := c.get(ctx, path, &mrs); err != nil {
		return 0, err
	}
	return len(mrs), nil
}

func (c *Client) GetContributorsCount(ctx context.Context, owner, repo string) (int, error) {
	var contributors []struct{}
	path := "/projects/" + projectID(owner, repo) + "/repository/contributors?per_page=100"
	if err := c.get(ctx, path, &contributors); err != nil {
		return 0, err
	}
	return len(contributors), nil
}

func (c *Client) GetReleases(ctx context.Context, owner, repo string) ([]provider.Ref, error) {
	var releases []struct {
		TagName string `json:"tag_name"`
	}
	path := "/projects/" + projectID(owner, repo) + "/releases?per_page=100"
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
	path := "/projects/" + projectID(owner, repo) + "/repository/tags?per_page=100"
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
		return apperrors.NewParseError("gitlab.request", path, err)
	}
	if c.Token != "" {
		req.Header.Set("PRIVATE-TOKEN", c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("gitlab.get", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return notFoundErr{}
	}
	if resp.StatusCode >= 400 {
		return apperrors.NewNetworkError("gitlab.get", path, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewParseError("gitlab.decode", path, err)
	}
	return nil
}
