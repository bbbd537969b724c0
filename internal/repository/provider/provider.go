// Package provider defines the contract GitHub and GitLab clients satisfy
// for repository validation: existence, activity signals, and tag/release
// listings used by the Version Matcher.
package provider

import "context"

// RepoInfo is the subset of a hosting provider's repository metadata the
// enrichers need.
type RepoInfo struct {
	Exists           bool
	Stars            int
	Forks            int
	OpenIssues       int
	OpenPRs          int
	LastActivityAt   string // RFC3339
	LastCommitAt     string
	LastMergedPRAt   string
	LastClosedIssueAt string
}

// Ref is a tag or release name, simplified to just the name the Version
// Matcher compares against.
type Ref struct {
	Name string
}

// Client is the Provider Validation Service contract from §4.2: get repo
// info, contributor count, and tags/releases for one owner/repo pair.
type Client interface {
	GetRepoInfo(ctx context.Context, owner, repo string) (RepoInfo, error)
	GetContributorsCount(ctx context.Context, owner, repo string) (int, error)
	GetReleases(ctx context.Context, owner, repo string) ([]Ref, error)
	GetTags(ctx context.Context, owner, repo string) ([]Ref, error)
}

// Registry resolves a host kind ("github"|"gitlab") to its Client.
type Registry map[string]Client
