package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/domain/facts"
	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
)

func Test_Evaluate_MetricsRule_Deny(t *testing.T) {
	t.Parallel()

	f := facts.Map{
		"stars_count":     1,
		"heuristic_score": 0.3,
	}
	cfg := domainpolicy.Config{
		Metrics: map[string]map[string]any{
			"stars_count":     {"min": 5},
			"heuristic_score": {"min": 0.6},
		},
	}

	d := Evaluate(f, cfg)

	assert.Equal(t, domain.Deny, d.Decision)
	assert.Contains(t, d.ViolatedRules, "stars_count min 5 failed (actual: 1)")
	assert.Contains(t, d.ViolatedRules, "heuristic_score min 0.6 failed (actual: 0.3)")
}

func Test_Evaluate_MetricsRule_MissingFact(t *testing.T) {
	t.Parallel()

	f := facts.Map{}
	cfg := domainpolicy.Config{
		Metrics: map[string]map[string]any{"stars_count": {"min": 5}},
	}

	d := Evaluate(f, cfg)

	require.Equal(t, domain.Deny, d.Decision)
	assert.Equal(t, []string{"missing fact: stars_count"}, d.ViolatedRules)
}

func Test_Evaluate_MetricsRule_ExplicitNilTreatedAsMissing(t *testing.T) {
	t.Parallel()

	// facts.Build always inserts every canonical key, explicit nil when
	// unavailable, so Get returns present=true with a nil value here.
	f := facts.Map{"stars_count": nil}
	cfg := domainpolicy.Config{
		Metrics: map[string]map[string]any{"stars_count": {"min": 5}},
	}

	d := Evaluate(f, cfg)

	require.Equal(t, domain.Deny, d.Decision)
	assert.Equal(t, []string{"missing fact: stars_count"}, d.ViolatedRules)
}

func Test_Evaluate_MetricsRule_AllowUnknown(t *testing.T) {
	t.Parallel()

	f := facts.Map{}
	cfg := domainpolicy.Config{
		Rules: []domainpolicy.RuleSpec{
			{
				Type: domainpolicy.RuleMetrics,
				Metrics: &domainpolicy.MetricsRule{
					Metrics:      map[string]map[string]any{"stars_count": {"min": 5}},
					AllowUnknown: true,
				},
			},
		},
	}

	d := Evaluate(f, cfg)

	assert.Equal(t, domain.Allow, d.Decision)
	assert.Empty(t, d.ViolatedRules)
}

func Test_Evaluate_RegexRule_ExcludeTakesPrecedence(t *testing.T) {
	t.Parallel()

	f := facts.Map{"package_name": "bad-pkg"}
	cfg := domainpolicy.Config{
		Rules: []domainpolicy.RuleSpec{
			{
				Type: domainpolicy.RuleRegex,
				Regex: &domainpolicy.RegexRule{
					Target:  "package_name",
					Exclude: []string{"bad-.*"},
				},
			},
		},
	}

	d := Evaluate(f, cfg)

	require.Equal(t, domain.Deny, d.Decision)
	assert.Equal(t, []string{"excluded by pattern: bad-.*"}, d.ViolatedRules)
}

func Test_Evaluate_LicenseRule_Disallowed(t *testing.T) {
	t.Parallel()

	f := facts.Map{"license.id": "GPL-3.0"}
	cfg := domainpolicy.Config{
		Rules: []domainpolicy.RuleSpec{
			{
				Type:    domainpolicy.RuleLicense,
				License: &domainpolicy.LicenseRule{DisallowedLicenses: []string{"GPL-3.0"}},
			},
		},
	}

	d := Evaluate(f, cfg)

	require.Equal(t, domain.Deny, d.Decision)
	assert.Equal(t, []string{"license GPL-3.0 is disallowed"}, d.ViolatedRules)
}

func Test_Evaluate_LinkedRule_RequireSourceRepo(t *testing.T) {
	t.Parallel()

	f := facts.Map{"repo_url_normalized": nil}
	cfg := domainpolicy.Config{
		Rules: []domainpolicy.RuleSpec{
			{
				Type: domainpolicy.RuleLinked,
				Linked: &domainpolicy.LinkedRule{
					Enabled:           true,
					RequireSourceRepo: true,
				},
			},
		},
	}

	d := Evaluate(f, cfg)

	require.Equal(t, domain.Deny, d.Decision)
	assert.Contains(t, d.ViolatedRules[0], "requires a linked source repository")
}

func Test_Evaluate_EmptyPolicy_Allows(t *testing.T) {
	t.Parallel()

	d := Evaluate(facts.Map{}, domainpolicy.Config{})

	assert.Equal(t, domain.Allow, d.Decision)
	assert.Empty(t, d.ViolatedRules)
}

func Test_Evaluate_Deterministic(t *testing.T) {
	t.Parallel()

	f := facts.Map{"stars_count": 1}
	cfg := domainpolicy.Config{Metrics: map[string]map[string]any{"stars_count": {"min": 5}}}

	d1 := Evaluate(f, cfg)
	d2 := Evaluate(f, cfg)

	assert.Equal(t, d1, d2)
}
