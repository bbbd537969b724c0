// Package enrich implements the Provider Validation Service sequence
// shared by every registry client: try each candidate repository URL in
// priority order, normalize it, and validate it against the matching
// hosting provider, stopping at the first success. Non-fatal failures are
// recorded on the package rather than aborting enrichment.
package enrich

import (
	"context"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/repository/provider"
	"github.com/depgate-dev/depgate/internal/repository/scmurl"
	"github.com/depgate-dev/depgate/internal/repository/versionmatch"
)

// Candidate is one repository URL candidate along with the provenance
// source it came from (e.g. "npm_repository_field", "pypi_project_urls").
type Candidate struct {
	URL    string
	Source string
}

// Providers resolves a normalized host ("github"|"gitlab") to its client.
// Hosts outside this registry (e.g. "other") are skipped without error.
type Providers = provider.Registry

// Run tries each candidate in order until one successfully validates
// against its provider, recording the result on p. versionTagPattern is
// the optional user regex pattern forwarded to the Version Matcher.
func Run(ctx context.Context, p *domain.Package, candidates []Candidate, providers Providers, versionTagPattern string) {
	for _, cand := range candidates {
		n := scmurl.Normalize(cand.URL)
		if n == nil {
			p.AddRepoError(cand.URL, "unparseable_url", "could not normalize candidate repository URL")
			continue
		}

		client, ok := providers[n.Host]
		if !ok {
			p.AddRepoError(cand.URL, "unsupported_provider", "no client configured for host "+n.Host)
			continue
		}

		info, err := client.GetRepoInfo(ctx, n.Owner, n.Repo)
		if err != nil {
			p.AddRepoError(cand.URL, "provider_error", err.Error())
			continue
		}
		if !info.Exists {
			p.AddRepoError(cand.URL, "repo_not_found", "repository does not exist at provider")
			continue
		}

		p.RepoURLNormalized = n.NormalizedURL
		p.RepoHost = n.Host
		p.RepoResolved = domain.BoolPtr(true)
		p.RepoExists = domain.BoolPtr(true)
		p.RepoStars = domain.IntPtr(info.Stars)
		p.RepoForks = domain.IntPtr(info.Forks)
		p.RepoOpenIssues = domain.IntPtr(info.OpenIssues)
		p.RepoOpenPRs = domain.IntPtr(info.OpenPRs)
		p.RepoLastActivityAt = info.LastActivityAt
		p.RepoLastCommitAt = info.LastCommitAt
		p.RepoLastMergedPRAt = info.LastMergedPRAt
		p.RepoLastClosedIssueAt = info.LastClosedIssueAt
		p.RecordProvenance("repo_url_normalized", cand.Source)

		if count, err := client.GetContributorsCount(ctx, n.Owner, n.Repo); err == nil {
			p.RepoContributors = domain.IntPtr(count)
		} else {
			p.AddRepoError(cand.URL, "contributors_error", err.Error())
		}

		refs, err := client.GetReleases(ctx, n.Owner, n.Repo)
		if err != nil {
			p.AddRepoError(cand.URL, "releases_error", err.Error())
			refs = nil
		}
		if len(refs) == 0 {
			if tags, err := client.GetTags(ctx, n.Owner, n.Repo); err == nil {
				refs = tags
			} else {
				p.AddRepoError(cand.URL, "tags_error", err.Error())
			}
		}

		names := make([]string, len(refs))
		for i, r := range refs {
			names[i] = r.Name
		}
		m := versionmatch.Match(p.ResolvedVersion, names, versionTagPattern)
		p.RepoVersionMatch = domain.VersionMatch{Matched: m.Matched, MatchType: m.MatchType, TagOrRelease: m.TagOrRelease}

		return
	}
}
