// Package facts projects a domain.Package into the flat, dotted-key fact
// map the policy engine evaluates rules against. Building a fact map never
// performs I/O; it only reads fields already populated by resolvers,
// registry clients, and enrichers.
package facts

import (
	"time"

	"github.com/depgate-dev/depgate/internal/domain"
)

// Map is the canonical fact record: dotted keys to values, with explicit
// nils for unknown/unavailable attributes rather than absent keys.
type Map map[string]any

// Build projects p into a Map. now is injected so the projection stays a
// pure function of its inputs in tests.
func Build(p *domain.Package, now time.Time) Map {
	f := Map{
		"package_name":     p.Name,
		"org_id":           nilIfEmpty(p.OrgID),
		"ecosystem":        p.Ecosystem.String(),
		"requested_spec":   nilIfEmpty(p.RequestedSpec),
		"resolved_version": nilIfEmpty(p.ResolvedVersion),
		"resolution_mode":  string(p.ResolutionMode),
		"candidate_count":  p.CandidateCount,

		"exists":                   boolOrNil(p.Exists),
		"version_count":            intOrNil(p.VersionCount),
		"release_timestamp_ms":     int64OrNil(p.ReleaseTimestampMs),
		"weekly_downloads":         int64OrNil(p.WeeklyDownloads),
		"previous_release_version": nilIfEmpty(p.PreviousReleaseVersion),

		"license.id":        nilIfEmpty(p.License.ID),
		"license.available":  p.License.Available,
		"license.source":    nilIfEmpty(p.License.Source),

		"repo_url_normalized":      nilIfEmpty(p.RepoURLNormalized),
		"repo_host":                nilIfEmpty(p.RepoHost),
		"repo_present_in_registry": boolOrNil(p.RepoPresentInRegistry),
		"repo_resolved":            boolOrNil(p.RepoResolved),
		"repo_exists":              boolOrNil(p.RepoExists),
		"repo_stars":               intOrNil(p.RepoStars),
		"repo_contributors":        intOrNil(p.RepoContributors),
		"repo_forks":               intOrNil(p.RepoForks),
		"repo_open_issues":         intOrNil(p.RepoOpenIssues),
		"repo_open_prs":            intOrNil(p.RepoOpenPRs),
		"repo_last_activity_at":    nilIfEmpty(p.RepoLastActivityAt),
		"repo_last_commit_at":      nilIfEmpty(p.RepoLastCommitAt),
		"repo_last_merged_pr_at":   nilIfEmpty(p.RepoLastMergedPRAt),
		"repo_last_closed_issue_at": nilIfEmpty(p.RepoLastClosedIssueAt),

		"version_found_in_source": p.RepoVersionMatch.Matched,

		"registry_signature_present":  boolOrNil(p.Trust.RegistrySignaturePresent),
		"provenance_present":          boolOrNil(p.Trust.ProvenancePresent),
		"registry_signature_regressed": boolOrNil(p.Trust.RegistrySignatureRegressed),
		"provenance_regressed":        boolOrNil(p.Trust.ProvenanceRegressed),

		"supply_chain_trust_score":          float64OrNil(p.Trust.TrustScore),
		"supply_chain_previous_trust_score": float64OrNil(p.Trust.PreviousScore),
		"supply_chain_trust_score_delta":    float64OrNil(p.Trust.TrustScoreDelta),
		"supply_chain_trust_score_decreased": boolOrNil(p.Trust.TrustScoreDecreased),
	}

	if age := ReleaseAgeDays(p.ReleaseTimestampMs, now); age != nil {
		f["release_age_days"] = *age
	} else {
		f["release_age_days"] = nil
	}

	return f
}

// ReleaseAgeDays computes floor((now - release_timestamp_ms)/86_400_000),
// or nil if the timestamp is unknown.
func ReleaseAgeDays(releaseTimestampMs *int64, now time.Time) *int {
	if releaseTimestampMs == nil {
		return nil
	}
	deltaMs := now.UnixMilli() - *releaseTimestampMs
	days := int(deltaMs / 86_400_000)
	return &days
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolOrNil(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func intOrNil(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func int64OrNil(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func float64OrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// Get resolves a dotted path into the fact map, returning (value, true) if
// present (even if the value is nil), or (nil, false) if the key is absent.
func (m Map) Get(path string) (any, bool) {
	v, ok := m[path]
	return v, ok
}
