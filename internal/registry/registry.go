// Package registry ties the per-ecosystem registry clients together behind
// one interface so callers (the Orchestrator, the proxy Evaluator) don't
// need an ecosystem switch of their own.
package registry

import (
	"context"

	"github.com/depgate-dev/depgate/internal/domain"
)

// Client fetches version candidates and enriches a Package with registry
// facts, license, trust signals, and repository discovery.
type Client interface {
	FetchCandidates(ctx context.Context, identifier string) ([]string, error)
	Enrich(ctx context.Context, p *domain.Package, versionTagPattern string) error
}

// Registry maps an ecosystem to its Client.
type Registry map[domain.Ecosystem]Client

// For returns the client registered for eco, or nil if unconfigured.
func (r Registry) For(eco domain.Ecosystem) Client {
	return r[eco]
}
