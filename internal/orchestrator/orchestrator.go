// Package orchestrator implements the offline-mode pipeline (§4.12):
// turning parsed CLI/manifest inputs into deduplicated PackageRequests,
// then driving Resolve -> Enrich -> Heuristics -> Policy for each.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/depgate-dev/depgate/internal/concurrency"
	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/domain/facts"
	"github.com/depgate-dev/depgate/internal/domain/heuristics"
	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
	"github.com/depgate-dev/depgate/internal/policy"
	"github.com/depgate-dev/depgate/internal/registry"
	"github.com/depgate-dev/depgate/internal/resolve"
	"github.com/depgate-dev/depgate/internal/resolve/pypiver"
)

// AnalysisLevel controls how far the pipeline runs per package.
type AnalysisLevel string

const (
	LevelCompare    AnalysisLevel = "compare"
	LevelHeuristics AnalysisLevel = "heuristics"
	LevelPolicy     AnalysisLevel = "policy"
)

// PackageRequest is one deduplicated unit of work: a package identity plus
// where it came from.
type PackageRequest struct {
	Ecosystem domain.Ecosystem
	Identifier string // PEP-503-normalized for PyPI, "group:artifact" for Maven
	Spec       string
	Source     string // "cli" | "manifest"
	RawToken   string
}

// ManifestEntry is a (name, raw_spec) pair already split out of a lockfile
// or manifest by the caller.
type ManifestEntry struct {
	Name    string
	RawSpec string
}

// BuildRequests turns raw CLI tokens and manifest entries into a
// deduplicated list of PackageRequests for eco.
func BuildRequests(eco domain.Ecosystem, cliTokens []string, manifestEntries []ManifestEntry) []PackageRequest {
	seen := make(map[string]bool)
	var out []PackageRequest

	add := func(req PackageRequest) {
		key := string(req.Ecosystem) + ":" + req.Identifier
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, req)
	}

	for _, tok := range cliTokens {
		identifier, spec := splitCLIToken(eco, tok)
		add(PackageRequest{
			Ecosystem:  eco,
			Identifier: normalizeIdentifier(eco, identifier),
			Spec:       spec,
			Source:     "cli",
			RawToken:   tok,
		})
	}

	for _, me := range manifestEntries {
		spec := me.RawSpec
		if spec == "latest" {
			spec = ""
		}
		add(PackageRequest{
			Ecosystem:  eco,
			Identifier: normalizeIdentifier(eco, me.Name),
			Spec:       spec,
			Source:     "manifest",
			RawToken:   me.Name + ":" + me.RawSpec,
		})
	}

	return out
}

// splitCLIToken applies the rightmost-colon split, except for Maven where
// the coordinate's own groupId:artifactId colon must be preserved: only a
// third colon introduces a spec.
func splitCLIToken(eco domain.Ecosystem, tok string) (identifier, spec string) {
	if eco == domain.Maven {
		parts := strings.Split(tok, ":")
		if len(parts) <= 2 {
			return tok, ""
		}
		return strings.Join(parts[:2], ":"), strings.Join(parts[2:], ":")
	}

	idx := strings.LastIndex(tok, ":")
	if idx < 0 {
		return tok, ""
	}
	return tok[:idx], tok[idx+1:]
}

func normalizeIdentifier(eco domain.Ecosystem, identifier string) string {
	if eco == domain.PyPI {
		return pypiver.NormalizeName(identifier)
	}
	return identifier
}

// PolicyLayers are deep-merged in increasing precedence:
// built-in preset < user config policy < --set overrides.
type PolicyLayers struct {
	BuiltInPreset domainpolicy.Config
	UserConfig    domainpolicy.Config
	Overrides     domainpolicy.Config
}

// Built-in preset names, per §4.12.
const (
	PresetDefault             = "default"
	PresetSupplyChain         = "supply-chain"
	PresetSupplyChainStrict   = "supply-chain-strict"
)

// BuildPreset builds one of the three built-in policy presets, grounded
// on original_source/src/analysis/policy_runner.py's build_policy_preset.
// An unrecognized name falls back to "default", matching the original.
// minReleaseAgeDays <= 0 falls back to heuristics.DefaultThresholds's
// MinReleaseAgeDays.
func BuildPreset(name string, minReleaseAgeDays int) domainpolicy.Config {
	if minReleaseAgeDays <= 0 {
		minReleaseAgeDays = heuristics.DefaultThresholds().MinReleaseAgeDays
	}

	switch name {
	case PresetSupplyChain, PresetSupplyChainStrict:
		return domainpolicy.Config{
			FailFast: false,
			Rules: []domainpolicy.RuleSpec{
				{
					Type: domainpolicy.RuleMetrics,
					Metrics: &domainpolicy.MetricsRule{
						AllowUnknown: name == PresetSupplyChain,
						Metrics: map[string]map[string]any{
							"release_age_days":                {"min": minReleaseAgeDays},
							"supply_chain_trust_score_delta":  {"min": 0},
							"provenance_regressed":            {"eq": false},
							"registry_signature_regressed":    {"eq": false},
						},
					},
				},
			},
		}
	default:
		return domainpolicy.Config{
			FailFast: false,
			Metrics: map[string]map[string]any{
				"stars_count":      {"min": 5},
				"heuristic_score":  {"min": 0.6},
			},
		}
	}
}

// MergePolicy deep-merges the three layers, later layers winning on
// conflicts, nested maps merged key-by-key.
func MergePolicy(layers PolicyLayers) (domainpolicy.Config, error) {
	merged := layers.BuiltInPreset
	if err := mergo.Merge(&merged, layers.UserConfig, mergo.WithOverride); err != nil {
		return domainpolicy.Config{}, fmt.Errorf("merge user config policy: %w", err)
	}
	if err := mergo.Merge(&merged, layers.Overrides, mergo.WithOverride); err != nil {
		return domainpolicy.Config{}, fmt.Errorf("merge policy overrides: %w", err)
	}
	return merged, nil
}

// Orchestrator drives the offline pipeline for a batch of requests.
type Orchestrator struct {
	Resolver   *resolve.Resolver
	Registry   registry.Registry
	Level      AnalysisLevel
	PolicyCfg  domainpolicy.Config
	Thresholds heuristics.Thresholds
	Now        func() time.Time
}

// New builds an Orchestrator with sane defaults (wall-clock Now).
func New(resolver *resolve.Resolver, reg registry.Registry, level AnalysisLevel, policyCfg domainpolicy.Config) *Orchestrator {
	return &Orchestrator{
		Resolver:   resolver,
		Registry:   reg,
		Level:      level,
		PolicyCfg:  policyCfg,
		Thresholds: heuristics.DefaultThresholds(),
		Now:        time.Now,
	}
}

// Run executes Resolve -> Enrich -> Heuristics -> Policy for every
// request, honoring o.Level, and returns one Package per request in input
// order. Enrichment runs with bounded per-ecosystem concurrency (§5); a
// package's own pipeline stages remain strictly ordered.
func (o *Orchestrator) Run(ctx context.Context, requests []PackageRequest) ([]*domain.Package, error) {
	resolveReqs := make([]resolve.Request, len(requests))
	for i, r := range requests {
		resolveReqs[i] = resolve.Request{Ecosystem: r.Ecosystem, Identifier: r.Identifier, Spec: r.Spec}
	}
	resolved := o.Resolver.ResolveAll(ctx, resolveReqs)

	packages := make([]*domain.Package, len(requests))
	for i, r := range requests {
		p := domain.NewPackage(r.Ecosystem, r.Identifier)
		if r.Ecosystem == domain.Maven {
			if idx := strings.LastIndex(r.Identifier, ":"); idx > 0 {
				p.OrgID, p.Name = r.Identifier[:idx], r.Identifier[idx+1:]
			}
		}

		key := string(r.Ecosystem) + ":" + r.Identifier
		res := resolved[key]
		p.RequestedSpec = res.RequestedSpec
		p.ResolvedVersion = res.ResolvedVersion
		p.ResolutionMode = res.Mode
		p.CandidateCount = res.CandidateCount
		p.ResolutionError = res.Error

		packages[i] = p
	}

	if o.Level == "" || requests == nil {
		return packages, nil
	}

	// Enrichment failures are per-package, not fatal to the batch: a
	// network error fetching one package's metadata must not prevent
	// heuristics/policy from running against the others.
	pool := concurrency.New(concurrency.DefaultMaxConcurrency)
	_ = concurrency.Run(ctx, pool, packages, func(ctx context.Context, p *domain.Package) error {
		if p.ResolutionError != "" {
			return nil
		}
		client := o.Registry.For(p.Ecosystem)
		if client == nil {
			return nil
		}
		if err := client.Enrich(ctx, p, ""); err != nil {
			p.AddRepoError("", "enrich_error", err.Error())
		}
		return nil
	})

	if o.Level == LevelCompare {
		return packages, nil
	}

	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	for _, p := range packages {
		ageDays := facts.ReleaseAgeDays(p.ReleaseTimestampMs, now())
		heuristics.Apply(p, ageDays, o.Thresholds)
	}

	if o.Level != LevelPolicy {
		return packages, nil
	}

	for _, p := range packages {
		f := facts.Build(p, now())
		d := policy.Evaluate(f, o.PolicyCfg)
		p.Policy = domain.PolicyResult{Decision: d.Decision, ViolatedRules: d.ViolatedRules, EvaluatedMetrics: d.EvaluatedMetrics}
	}

	return packages, nil
}
