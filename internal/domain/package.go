package domain

import "sync"

// License records a package's declared license along with where that
// declaration was sourced from.
type License struct {
	ID        string // SPDX identifier or raw license string; empty if unknown
	Source    string // e.g. "npm_license_field", "pypi_classifiers", "nuget_license_expression"
	Available bool
	URL       string
}

// VersionMatch is the outcome of matching a resolved version against a
// repository's tags/releases.
type VersionMatch struct {
	Matched      bool
	MatchType    string // "exact" | "v-prefix" | "suffix-normalized" | "pattern"
	TagOrRelease string
}

// RepoError records a non-fatal failure encountered while validating or
// enriching a candidate source-repository URL.
type RepoError struct {
	URL       string
	ErrorType string
	Message   string
}

// TrustSignals captures tri-state (unknown/true/false) supply-chain signals
// for the selected version, plus the previous release's signals for
// regression detection.
type TrustSignals struct {
	RegistrySignaturePresent         *bool
	ProvenancePresent                *bool
	PreviousRegistrySignaturePresent *bool
	PreviousProvenancePresent        *bool
	RegistrySignatureRegressed       *bool
	ProvenanceRegressed              *bool

	TrustScore        *float64
	PreviousScore     *float64
	TrustScoreDelta   *float64
	TrustScoreDecreased *bool
}

// Heuristics holds the risk booleans computed by the pure heuristics layer.
// All fields are tri-state: nil means "not evaluated".
type Heuristics struct {
	RiskMissing                    *bool
	RiskLowScore                   *bool
	RiskMinVersions                *bool
	RiskTooNew                     *bool
	RiskProvenanceRegression       *bool
	RiskRegistrySignatureRegression *bool
	RiskScoreDecrease              *bool
}

// PolicyResult is the policy engine's verdict, annotated back onto the
// package.
type PolicyResult struct {
	Decision         Decision
	ViolatedRules    []string
	EvaluatedMetrics map[string]any
}

// Package is the central mutable record: one per unique (ecosystem,
// identifier). It is created by the Orchestrator before resolution and
// mutated, in strict order, by Resolvers, Registry Clients, Enrichers,
// Heuristics, and the Policy Engine.
type Package struct {
	mu sync.Mutex // guards concurrent field access from worker goroutines

	// Identity.
	Ecosystem Ecosystem
	Name      string
	OrgID     string // Maven groupId; empty elsewhere

	// Resolution.
	RequestedSpec  string
	ResolvedVersion string
	ResolutionMode  ResolutionMode
	CandidateCount  int
	ResolutionError string

	// Registry facts.
	Exists                 *bool
	VersionCount           *int
	ReleaseTimestampMs      *int64
	WeeklyDownloads         *int64
	PreviousReleaseVersion  string

	License License

	// Repository discovery.
	RepoURLNormalized string
	RepoHost          string // "github" | "gitlab" | "other"
	RepoPresentInRegistry *bool
	RepoResolved          *bool
	RepoExists            *bool
	RepoStars             *int
	RepoContributors      *int
	RepoForks             *int
	RepoOpenIssues        *int
	RepoOpenPRs           *int
	RepoLastActivityAt    string // RFC3339, empty if unknown
	RepoLastCommitAt      string
	RepoLastMergedPRAt    string
	RepoLastClosedIssueAt string
	RepoVersionMatch      VersionMatch
	RepoErrors            []RepoError

	Trust      TrustSignals
	Heuristics Heuristics
	Policy     PolicyResult

	// Provenance: dotted-key -> source of that attribute.
	Provenance map[string]string
}

// NewPackage constructs a Package ready for the resolution stage.
func NewPackage(eco Ecosystem, name string) *Package {
	return &Package{
		Ecosystem:  eco,
		Name:       name,
		Provenance: make(map[string]string),
	}
}

// Key returns the unique identity key for this package, used by caches and
// deduplication: "(ecosystem, identifier)".
func (p *Package) Key() string {
	if p.OrgID != "" {
		return string(p.Ecosystem) + ":" + p.OrgID + ":" + p.Name
	}
	return string(p.Ecosystem) + ":" + p.Name
}

// RecordProvenance records which raw source produced a given attribute.
// Safe for concurrent use.
func (p *Package) RecordProvenance(key, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Provenance == nil {
		p.Provenance = make(map[string]string)
	}
	p.Provenance[key] = source
}

// AddRepoError appends a non-fatal repository error without aborting
// enrichment. Safe for concurrent use.
func (p *Package) AddRepoError(url, errType, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RepoErrors = append(p.RepoErrors, RepoError{URL: url, ErrorType: errType, Message: message})
}

// BoolPtr is a small helper for building *bool literals inline.
func BoolPtr(b bool) *bool { return &b }

// IntPtr is a small helper for building *int literals inline.
func IntPtr(i int) *int { return &i }

// Int64Ptr is a small helper for building *int64 literals inline.
func Int64Ptr(i int64) *int64 { return &i }

// Float64Ptr is a small helper for building *float64 literals inline.
func Float64Ptr(f float64) *float64 { return &f }
