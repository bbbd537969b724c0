package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/depgate-dev/depgate/internal/domain"
)

// jsonPackage is the nested JSON shape §6 specifies: flat identity and
// resolution fields alongside grouped policy/license/risk objects,
// rather than Package's flat internal field layout.
type jsonPackage struct {
	PackageName     string `json:"package_name"`
	PackageType     string `json:"package_type"`
	ExistsExternal  *bool  `json:"exists_on_external"`
	OrgID           string `json:"org_id,omitempty"`
	Score           *float64 `json:"score"`
	VersionCount    *int   `json:"version_count"`
	RequestedSpec   string `json:"requested_spec,omitempty"`
	ResolvedVersion string `json:"resolved_version,omitempty"`
	ResolutionMode  string `json:"resolution_mode,omitempty"`
	ResolutionError string `json:"resolution_error,omitempty"`

	License jsonLicense `json:"license"`
	Risk    jsonRisk    `json:"risk"`
	Policy  jsonPolicy  `json:"policy"`

	Repository jsonRepository `json:"repository"`
}

type jsonLicense struct {
	ID        string `json:"id,omitempty"`
	Source    string `json:"source,omitempty"`
	Available bool   `json:"available"`
}

type jsonRisk struct {
	Missing                    *bool `json:"missing"`
	LowScore                   *bool `json:"low_score"`
	MinVersions                *bool `json:"min_versions"`
	TooNew                     *bool `json:"too_new"`
	ProvenanceRegression       *bool `json:"provenance_regression"`
	RegistrySignatureRegression *bool `json:"registry_signature_regression"`
	ScoreDecrease              *bool `json:"score_decrease"`
}

type jsonPolicy struct {
	Decision         string         `json:"decision,omitempty"`
	ViolatedRules    []string       `json:"violated_rules,omitempty"`
	EvaluatedMetrics map[string]any `json:"evaluated_metrics,omitempty"`
}

type jsonRepository struct {
	URL            string `json:"url,omitempty"`
	Host           string `json:"host,omitempty"`
	Exists         *bool  `json:"exists"`
	Stars          *int   `json:"stars"`
	Contributors   *int   `json:"contributors"`
	Forks          *int   `json:"forks"`
	OpenIssues     *int   `json:"open_issues"`
	LastActivityAt string `json:"last_activity_at,omitempty"`
	VersionMatch   string `json:"version_match,omitempty"`
}

func toJSONPackage(p *domain.Package) jsonPackage {
	return jsonPackage{
		PackageName:     p.Name,
		PackageType:     string(p.Ecosystem),
		ExistsExternal:  p.Exists,
		OrgID:           p.OrgID,
		Score:           p.Trust.TrustScore,
		VersionCount:    p.VersionCount,
		RequestedSpec:   p.RequestedSpec,
		ResolvedVersion: p.ResolvedVersion,
		ResolutionMode:  string(p.ResolutionMode),
		ResolutionError: p.ResolutionError,
		License: jsonLicense{
			ID:        p.License.ID,
			Source:    p.License.Source,
			Available: p.License.Available,
		},
		Risk: jsonRisk{
			Missing:                     p.Heuristics.RiskMissing,
			LowScore:                    p.Heuristics.RiskLowScore,
			MinVersions:                 p.Heuristics.RiskMinVersions,
			TooNew:                      p.Heuristics.RiskTooNew,
			ProvenanceRegression:        p.Heuristics.RiskProvenanceRegression,
			RegistrySignatureRegression: p.Heuristics.RiskRegistrySignatureRegression,
			ScoreDecrease:               p.Heuristics.RiskScoreDecrease,
		},
		Policy: jsonPolicy{
			Decision:         string(p.Policy.Decision),
			ViolatedRules:    p.Policy.ViolatedRules,
			EvaluatedMetrics: p.Policy.EvaluatedMetrics,
		},
		Repository: jsonRepository{
			URL:            p.RepoURLNormalized,
			Host:           p.RepoHost,
			Exists:         p.RepoExists,
			Stars:          p.RepoStars,
			Contributors:   p.RepoContributors,
			Forks:          p.RepoForks,
			OpenIssues:     p.RepoOpenIssues,
			LastActivityAt: p.RepoLastActivityAt,
			VersionMatch:   p.RepoVersionMatch.MatchType,
		},
	}
}

// WriteJSON renders packages as an indented JSON array using the nested
// policy/license/risk shape.
func WriteJSON(w io.Writer, packages []*domain.Package) error {
	out := make([]jsonPackage, len(packages))
	for i, p := range packages {
		out[i] = toJSONPackage(p)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding JSON report: %w", err)
	}
	return nil
}
