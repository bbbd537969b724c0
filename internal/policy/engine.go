// Package policy evaluates a merged policy configuration against a fact
// map and produces a structured allow/deny decision, grounded on
// original_source/src/analysis/policy_rules.py's exact violation-message
// formats (kept verbatim so operators and existing tooling can grep them).
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/domain/facts"
	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
)

// Decision is the policy engine's verdict.
type Decision struct {
	Decision         domain.Decision
	ViolatedRules    []string
	EvaluatedMetrics map[string]any
}

// Evaluate runs every rule in cfg, in order, against f. Rules never abort
// the batch: a comparator error or an unknown comparator becomes a
// violation message, not a panic. fail_fast (global, then per-rule) stops
// evaluation early once a rule has produced at least one violation.
func Evaluate(f facts.Map, cfg domainpolicy.Config) Decision {
	d := Decision{
		Decision:         domain.Allow,
		ViolatedRules:    []string{},
		EvaluatedMetrics: map[string]any{},
	}

	rules := cfg.Rules
	if len(cfg.Metrics) > 0 {
		sugar := domainpolicy.FromMetricsSugar(cfg.Metrics, cfg.FailFast)
		rules = append([]domainpolicy.RuleSpec{sugar}, rules...)
	}

	for i, rule := range rules {
		violations, metrics := evaluateRule(f, rule, i)
		for k, v := range metrics {
			d.EvaluatedMetrics[k] = v
		}
		if len(violations) > 0 {
			d.Decision = domain.Deny
			d.ViolatedRules = append(d.ViolatedRules, violations...)
			if cfg.FailFast || ruleFailFast(rule) {
				break
			}
		}
	}

	return d
}

func ruleFailFast(r domainpolicy.RuleSpec) bool {
	return r.Type == domainpolicy.RuleMetrics && r.Metrics != nil && r.Metrics.FailFast
}

func evaluateRule(f facts.Map, rule domainpolicy.RuleSpec, index int) ([]string, map[string]any) {
	prefix := rule.Name
	if prefix == "" {
		prefix = fmt.Sprintf("rule%d", index)
	}

	switch rule.Type {
	case domainpolicy.RuleMetrics:
		return evaluateMetrics(f, rule.Metrics, prefix)
	case domainpolicy.RuleRegex:
		return evaluateRegex(f, rule.Regex), nil
	case domainpolicy.RuleLicense:
		return evaluateLicense(f, rule.License), nil
	case domainpolicy.RuleLinked:
		return evaluateLinked(f, rule.Linked), nil
	default:
		return []string{fmt.Sprintf("unknown rule type: %s", rule.Type)}, nil
	}
}

// evaluateMetrics implements §4.5's metric rule, one violation message per
// failed (path, op) pair, stable strings matching policy_rules.py.
func evaluateMetrics(f facts.Map, mr *domainpolicy.MetricsRule, prefix string) ([]string, map[string]any) {
	var violations []string
	metrics := map[string]any{}

	for path, constraints := range mr.Metrics {
		actual, present := f.Get(path)
		metrics[prefix+"."+path] = actual

		if !present || actual == nil {
			if mr.AllowUnknown {
				continue
			}
			violations = append(violations, fmt.Sprintf("missing fact: %s", path))
			continue
		}

		for op, expected := range constraints {
			cmp, ok := Comparators[op]
			if !ok {
				violations = append(violations, fmt.Sprintf("unknown comparator: %s", op))
				continue
			}
			ok2, err := cmp(actual, expected)
			if err != nil {
				violations = append(violations, fmt.Sprintf("comparison error for %s: %s", path, err.Error()))
				continue
			}
			if !ok2 {
				violations = append(violations, fmt.Sprintf("%s %s %v failed (actual: %v)", path, op, expected, actual))
			}
			if mr.FailFast && len(violations) > 0 {
				return violations, metrics
			}
		}
	}
	return violations, metrics
}

// evaluateRegex implements §4.5's regex rule: exclude patterns are checked
// first and take precedence over include.
func evaluateRegex(f facts.Map, rr *domainpolicy.RegexRule) []string {
	target := rr.Target
	if target == "" {
		target = "package_name"
	}
	raw, present := f.Get(target)
	if !present || raw == nil {
		return []string{fmt.Sprintf("missing target value: %s", target)}
	}
	value, ok := raw.(string)
	if !ok {
		return []string{fmt.Sprintf("missing target value: %s", target)}
	}

	for _, pat := range rr.Exclude {
		if matchPattern(pat, value, rr.CaseSensitive, rr.FullMatch) {
			return []string{fmt.Sprintf("excluded by pattern: %s", pat)}
		}
	}

	if len(rr.Include) == 0 {
		return nil
	}
	for _, pat := range rr.Include {
		if matchPattern(pat, value, rr.CaseSensitive, rr.FullMatch) {
			return nil
		}
	}
	return []string{"not matched by any include pattern"}
}

func matchPattern(pattern, value string, caseSensitive, fullMatch bool) bool {
	if fullMatch {
		pattern = "^(?:" + pattern + ")$"
	}
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

// evaluateLicense implements §4.5's license rule.
func evaluateLicense(f facts.Map, lr *domainpolicy.LicenseRule) []string {
	raw, _ := f.Get("license.id")
	if raw == nil {
		if lr.AllowUnknown {
			return nil
		}
		return []string{"license unknown and allow_unknown=false"}
	}
	id, _ := raw.(string)
	for _, disallowed := range lr.DisallowedLicenses {
		if strings.EqualFold(id, disallowed) {
			return []string{fmt.Sprintf("license %s is disallowed", id)}
		}
	}
	return nil
}

// evaluateLinked implements §4.5's linked-source rule.
func evaluateLinked(f facts.Map, lr *domainpolicy.LinkedRule) []string {
	if !lr.Enabled {
		return nil
	}

	var violations []string

	repoURLRaw, _ := f.Get("repo_url_normalized")
	repoURL, _ := repoURLRaw.(string)

	if lr.RequireSourceRepo && repoURL == "" {
		violations = append(violations, "policy requires a linked source repository but none was found")
	}

	if lr.RequireVersionInSource {
		matchedRaw, _ := f.Get("version_found_in_source")
		matched, _ := matchedRaw.(bool)
		if !matched {
			version, _ := f.Get("resolved_version")
			violations = append(violations, fmt.Sprintf(
				"version %v not found in source repository %s (expected tag/release matching one of %v)",
				version, repoURL, lr.VersionTagPatterns,
			))
		}
	}

	if len(lr.AllowedProviders) > 0 {
		hostRaw, _ := f.Get("repo_host")
		host, _ := hostRaw.(string)
		if host != "" && !contains(lr.AllowedProviders, host) {
			violations = append(violations, fmt.Sprintf("SCM provider '%s' is not allowed", host))
		}
	}

	if lr.NameMatch != domainpolicy.NameMatchNone {
		pkgName, _ := f.Get("package_name")
		pkgStr, _ := pkgName.(string)
		repoName := repoNameFromURL(repoURL)
		if repoName == "" {
			violations = append(violations, "name_match requested but no repository URL is available")
		} else {
			switch lr.NameMatch {
			case domainpolicy.NameMatchExact:
				if !strings.EqualFold(pkgStr, repoName) {
					violations = append(violations, fmt.Sprintf("package name %q does not exactly match repository name %q", pkgStr, repoName))
				}
			case domainpolicy.NameMatchPartial:
				if !hasCommonSubstring(strings.ToLower(pkgStr), strings.ToLower(repoName), lr.NameMatchMinLen) {
					violations = append(violations, fmt.Sprintf("package name %q has no common substring of length >= %d with repository name %q", pkgStr, lr.NameMatchMinLen, repoName))
				}
			}
		}
	}

	return violations
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func repoNameFromURL(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	return parts[len(parts)-1]
}

// hasCommonSubstring reports whether a and b share a contiguous substring
// of at least minLen characters.
func hasCommonSubstring(a, b string, minLen int) bool {
	if minLen <= 0 {
		minLen = 1
	}
	if len(a) < minLen || len(b) < minLen {
		return false
	}
	for i := 0; i+minLen <= len(a); i++ {
		if strings.Contains(b, a[i:i+minLen]) {
			return true
		}
	}
	return false
}
