package policy

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// ruleSpecShape mirrors RuleSpec's wire form: all variant fields inlined
// flat in the YAML document, discriminated by "type".
type ruleSpecShape struct {
	Type RuleKind `yaml:"type"`
	Name string   `yaml:"name,omitempty"`

	Metrics      map[string]map[string]any `yaml:"metrics,omitempty"`
	AllowUnknown bool                      `yaml:"allow_unknown,omitempty"`
	FailFast     bool                      `yaml:"fail_fast,omitempty"`

	Target        string   `yaml:"target,omitempty"`
	Include       []string `yaml:"include,omitempty"`
	Exclude       []string `yaml:"exclude,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive,omitempty"`
	FullMatch     bool     `yaml:"full_match,omitempty"`

	DisallowedLicenses []string `yaml:"disallowed_licenses,omitempty"`

	Enabled                bool          `yaml:"enabled,omitempty"`
	RequireSourceRepo      bool          `yaml:"require_source_repo,omitempty"`
	RequireVersionInSource bool          `yaml:"require_version_in_source,omitempty"`
	AllowedProviders       []string      `yaml:"allowed_providers,omitempty"`
	VersionTagPatterns     []string      `yaml:"version_tag_patterns,omitempty"`
	NameMatch              NameMatchMode `yaml:"name_match,omitempty"`
	NameMatchMinLen        int           `yaml:"name_match_min_len,omitempty"`
}

// UnmarshalYAML reconstructs the tagged union by parsing the flat shape
// then dispatching on Type into the matching variant pointer.
func (r *RuleSpec) UnmarshalYAML(b []byte) error {
	var s ruleSpecShape
	if err := yaml.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decoding rule: %w", err)
	}

	r.Type = s.Type
	r.Name = s.Name

	switch s.Type {
	case RuleMetrics:
		r.Metrics = &MetricsRule{Metrics: s.Metrics, AllowUnknown: s.AllowUnknown, FailFast: s.FailFast}
	case RuleRegex:
		target := s.Target
		if target == "" {
			target = "package_name"
		}
		r.Regex = &RegexRule{
			Target:        target,
			Include:       s.Include,
			Exclude:       s.Exclude,
			CaseSensitive: s.CaseSensitive,
			FullMatch:     s.FullMatch,
		}
	case RuleLicense:
		r.License = &LicenseRule{DisallowedLicenses: s.DisallowedLicenses, AllowUnknown: s.AllowUnknown}
	case RuleLinked:
		nm := s.NameMatch
		if nm == "" {
			nm = NameMatchNone
		}
		r.Linked = &LinkedRule{
			Enabled:                s.Enabled,
			RequireSourceRepo:      s.RequireSourceRepo,
			RequireVersionInSource: s.RequireVersionInSource,
			AllowedProviders:       s.AllowedProviders,
			VersionTagPatterns:     s.VersionTagPatterns,
			NameMatch:              nm,
			NameMatchMinLen:        s.NameMatchMinLen,
		}
	default:
		return fmt.Errorf("unknown rule type: %q", s.Type)
	}
	return nil
}
