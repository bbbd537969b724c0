// Package output formats a completed analysis batch as CSV, JSON, or
// SARIF for the scan subcommand's --output/--format flags (§6).
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/depgate-dev/depgate/internal/domain"
)

// csvColumns is the stable, ordered header every CSV report carries,
// regardless of which risks ended up populated for a given row.
var csvColumns = []string{
	"Package Name",
	"Package Type",
	"Exists on External",
	"Org/Group ID",
	"Score",
	"Version Count",
	"Timestamp",
	"Risk: Missing",
	"Risk: Low Score",
	"Risk: Min Versions",
	"Risk: Too New",
	"Risk: Any Risks",
	"requested_spec",
	"resolved_version",
	"resolution_mode",
	"repo_url",
	"repo_stars",
	"repo_contributors",
	"repo_last_activity_at",
	"repo_version_match",
}

// WriteCSV renders packages as the stable-column CSV report.
func WriteCSV(w io.Writer, packages []*domain.Package) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, p := range packages {
		if err := cw.Write(csvRow(p)); err != nil {
			return fmt.Errorf("writing CSV row for %q: %w", p.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(p *domain.Package) []string {
	anyRisk := anyRiskTrue(p)
	return []string{
		p.Name,
		string(p.Ecosystem),
		boolPtrString(p.Exists),
		p.OrgID,
		floatPtrString(p.Trust.TrustScore),
		intPtrString(p.VersionCount),
		timestampString(p.ReleaseTimestampMs),
		boolPtrString(p.Heuristics.RiskMissing),
		boolPtrString(p.Heuristics.RiskLowScore),
		boolPtrString(p.Heuristics.RiskMinVersions),
		boolPtrString(p.Heuristics.RiskTooNew),
		boolString(anyRisk),
		p.RequestedSpec,
		p.ResolvedVersion,
		string(p.ResolutionMode),
		p.RepoURLNormalized,
		intPtrString(p.RepoStars),
		intPtrString(p.RepoContributors),
		p.RepoLastActivityAt,
		p.RepoVersionMatch.MatchType,
	}
}

func anyRiskTrue(p *domain.Package) bool {
	h := p.Heuristics
	for _, r := range []*bool{
		h.RiskMissing, h.RiskLowScore, h.RiskMinVersions, h.RiskTooNew,
		h.RiskProvenanceRegression, h.RiskRegistrySignatureRegression, h.RiskScoreDecrease,
	} {
		if r != nil && *r {
			return true
		}
	}
	return false
}

func boolPtrString(b *bool) string {
	if b == nil {
		return ""
	}
	return boolString(*b)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func intPtrString(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func floatPtrString(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 4, 64)
}

func timestampString(ms *int64) string {
	if ms == nil {
		return ""
	}
	return strconv.FormatInt(*ms, 10)
}
