// Package evaluator implements the proxy's per-request decision pipeline
// (§4.11 step 3): decision-cache lookup, transient Package build, registry
// enrich, heuristics, policy evaluation, and decision-mode downgrade.
package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/domain/facts"
	"github.com/depgate-dev/depgate/internal/domain/heuristics"
	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
	"github.com/depgate-dev/depgate/internal/policy"
	"github.com/depgate-dev/depgate/internal/proxy/cache"
	"github.com/depgate-dev/depgate/internal/registry"
)

// Mode controls how a deny verdict is applied to the request.
type Mode string

const (
	ModeBlock Mode = "block"
	ModeWarn  Mode = "warn"
	ModeAudit Mode = "audit"
)

// Result is what the proxy handler needs to respond to the client.
type Result struct {
	Decision      domain.Decision // the decision actually applied, after the mode downgrade
	RawDecision   domain.Decision // the policy engine's unmodified verdict
	ViolatedRules []string
	FromCache     bool
}

// Evaluator runs the registry-enrich -> heuristics -> facts -> policy
// pipeline for proxy requests, caching the result per package version.
type Evaluator struct {
	Registry  registry.Registry
	Cache     *cache.DecisionCache
	PolicyCfg domainpolicy.Config
	Mode      Mode
	Thresholds heuristics.Thresholds
}

// Evaluate decides whether (ecosystem, name, version) should be allowed
// through the proxy, consulting and populating the decision cache.
func (e *Evaluator) Evaluate(ctx context.Context, eco domain.Ecosystem, name, version string) (Result, error) {
	key := cache.Key(string(eco), name, version)

	if entry, ok := e.Cache.Get(key); ok {
		return Result{
			Decision:      entry.Decision,
			RawDecision:   entry.Decision,
			ViolatedRules: entry.ViolatedRules,
			FromCache:     true,
		}, nil
	}

	p := domain.NewPackage(eco, name)
	if eco == domain.Maven {
		if idx := strings.LastIndex(name, ":"); idx > 0 {
			p.OrgID, p.Name = name[:idx], name[idx+1:]
		}
	}
	p.ResolvedVersion = version

	client := e.Registry.For(eco)
	if client == nil {
		return Result{}, fmt.Errorf("no registry client configured for %s", eco)
	}
	if err := client.Enrich(ctx, p, ""); err != nil {
		return Result{}, err
	}

	ageDays := facts.ReleaseAgeDays(p.ReleaseTimestampMs, time.Now())
	heuristics.Apply(p, ageDays, e.Thresholds)

	f := facts.Build(p, time.Now())
	d := policy.Evaluate(f, e.PolicyCfg)
	p.Policy = domain.PolicyResult{Decision: d.Decision, ViolatedRules: d.ViolatedRules, EvaluatedMetrics: d.EvaluatedMetrics}

	applied := d.Decision
	if applied == domain.Deny {
		switch e.Mode {
		case ModeWarn, ModeAudit:
			applied = domain.Allow
		}
	}

	e.Cache.Set(key, cache.DecisionEntry{
		Decision:      applied,
		ViolatedRules: d.ViolatedRules,
		Facts:         f,
	})

	return Result{
		Decision:      applied,
		RawDecision:   d.Decision,
		ViolatedRules: d.ViolatedRules,
	}, nil
}
