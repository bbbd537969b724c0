// Package heuristics computes risk booleans from already-collected facts.
// Every function here is a pure function of its inputs: no I/O, no clocks
// beyond what the caller supplies, no shared state.
package heuristics

import "github.com/depgate-dev/depgate/internal/domain"

// Thresholds bundles the tunable constants §4.6 calls out, owned by the
// caller's Config rather than package-level globals.
type Thresholds struct {
	MinReleaseAgeDays    int     // default 2
	ScoreDecreaseMin     float64 // default 0.1; risk when delta <= -this
	LowScoreHardMax      float64 // default 0.15
	LowScoreSoftMax      float64 // default 0.6
}

// DefaultThresholds returns the §4.6 defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinReleaseAgeDays: 2,
		ScoreDecreaseMin:  0.1,
		LowScoreHardMax:   0.15,
		LowScoreSoftMax:   0.6,
	}
}

// Apply sets every risk_* field on p from its already-populated facts.
// Fields for signals that were never evaluated remain nil (not false).
func Apply(p *domain.Package, releaseAgeDays *int, t Thresholds) {
	p.Heuristics.RiskMissing = riskMissing(p)
	p.Heuristics.RiskLowScore = riskLowScore(p, t)
	p.Heuristics.RiskMinVersions = riskMinVersions(p)
	p.Heuristics.RiskTooNew = riskTooNew(releaseAgeDays, t)
	p.Heuristics.RiskProvenanceRegression = p.Trust.ProvenanceRegressed
	p.Heuristics.RiskRegistrySignatureRegression = p.Trust.RegistrySignatureRegressed
	p.Heuristics.RiskScoreDecrease = riskScoreDecrease(p, t)
}

func riskMissing(p *domain.Package) *bool {
	if p.Exists == nil {
		return nil
	}
	return domain.BoolPtr(!*p.Exists)
}

// riskLowScore reports the hard threshold (<=0.15) as the deny-worthy
// signal; the soft threshold (<=0.6) is informational and surfaced via
// evaluated_metrics, not this boolean, matching §4.6's "reported, not
// necessarily risky" note for the soft band.
func riskLowScore(p *domain.Package, t Thresholds) *bool {
	if p.Trust.TrustScore == nil {
		return nil
	}
	return domain.BoolPtr(*p.Trust.TrustScore <= t.LowScoreHardMax)
}

func riskMinVersions(p *domain.Package) *bool {
	if p.VersionCount == nil {
		return nil
	}
	return domain.BoolPtr(*p.VersionCount < 2)
}

func riskTooNew(releaseAgeDays *int, t Thresholds) *bool {
	if releaseAgeDays == nil {
		return nil
	}
	return domain.BoolPtr(*releaseAgeDays < t.MinReleaseAgeDays)
}

func riskScoreDecrease(p *domain.Package, t Thresholds) *bool {
	if p.Trust.TrustScoreDelta == nil {
		return nil
	}
	return domain.BoolPtr(*p.Trust.TrustScoreDelta <= -t.ScoreDecreaseMin)
}
