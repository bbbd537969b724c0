// Package policy holds the typed configuration shapes the policy engine
// evaluates: a Config with optional top-level metrics sugar plus an ordered
// list of tagged RuleSpec variants.
package policy

// Config is the fully-merged policy document: built_in_preset deep-merged
// with user_config.policy deep-merged with --set overrides.
type Config struct {
	FailFast bool                          `yaml:"fail_fast" json:"fail_fast"`
	Metrics  map[string]map[string]any     `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Rules    []RuleSpec                    `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// RuleKind discriminates the RuleSpec tagged union.
type RuleKind string

const (
	RuleMetrics RuleKind = "metrics"
	RuleRegex   RuleKind = "regex"
	RuleLicense RuleKind = "license"
	RuleLinked  RuleKind = "linked"
)

// RuleSpec is a tagged union over the four rule variants. Exactly the
// fields for Type are meaningful; the others are zero-valued.
type RuleSpec struct {
	Type RuleKind `yaml:"type" json:"type"`

	Metrics *MetricsRule `yaml:"-" json:"-"`
	Regex   *RegexRule   `yaml:"-" json:"-"`
	License *LicenseRule `yaml:"-" json:"-"`
	Linked  *LinkedRule  `yaml:"-" json:"-"`

	// Name, when set, prefixes this rule's evaluated-metrics keys so
	// duplicate paths across rules don't collide.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// MetricsRule compares dotted fact paths against per-path constraint maps,
// e.g. {"stars_count": {"min": 5}}.
type MetricsRule struct {
	Metrics      map[string]map[string]any `yaml:"metrics" json:"metrics"`
	AllowUnknown bool                      `yaml:"allow_unknown" json:"allow_unknown"`
	FailFast     bool                      `yaml:"fail_fast" json:"fail_fast"`
}

// RegexRule matches a single fact (default package_name) against include
// and exclude pattern lists; exclude takes precedence.
type RegexRule struct {
	Target        string   `yaml:"target" json:"target"`
	Include       []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude       []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive" json:"case_sensitive"`
	FullMatch     bool     `yaml:"full_match" json:"full_match"`
}

// LicenseRule denies on a disallowed or missing license.
type LicenseRule struct {
	DisallowedLicenses []string `yaml:"disallowed_licenses,omitempty" json:"disallowed_licenses,omitempty"`
	AllowUnknown       bool     `yaml:"allow_unknown" json:"allow_unknown"`
}

// NameMatchMode controls how strictly a package name must correlate with
// its linked repository name.
type NameMatchMode string

const (
	NameMatchNone    NameMatchMode = "none"
	NameMatchExact   NameMatchMode = "exact"
	NameMatchPartial NameMatchMode = "partial"
)

// LinkedRule enforces that a package declares, and matches, a source
// repository.
type LinkedRule struct {
	Enabled                bool          `yaml:"enabled" json:"enabled"`
	RequireSourceRepo      bool          `yaml:"require_source_repo" json:"require_source_repo"`
	RequireVersionInSource bool          `yaml:"require_version_in_source" json:"require_version_in_source"`
	AllowedProviders       []string      `yaml:"allowed_providers,omitempty" json:"allowed_providers,omitempty"`
	VersionTagPatterns     []string      `yaml:"version_tag_patterns,omitempty" json:"version_tag_patterns,omitempty"`
	NameMatch              NameMatchMode `yaml:"name_match" json:"name_match"`
	NameMatchMinLen        int           `yaml:"name_match_min_len" json:"name_match_min_len"`
}

// FromMetricsSugar builds the equivalent of a single metrics-type RuleSpec
// from the top-level Config.Metrics shorthand.
func FromMetricsSugar(metrics map[string]map[string]any, failFast bool) RuleSpec {
	return RuleSpec{
		Type: RuleMetrics,
		Metrics: &MetricsRule{
			Metrics:  metrics,
			FailFast: failFast,
		},
	}
}
