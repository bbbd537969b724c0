// Package application wires the domain, registry, resolve, and proxy
// packages into the dependency sets cmd/depgate's subcommands need,
// mirroring the teacher's dependency-injection container.
package application

import (
	"context"
	"log/slog"

	"github.com/depgate-dev/depgate/internal/domain"
	domainpolicy "github.com/depgate-dev/depgate/internal/domain/policy"
	infraconfig "github.com/depgate-dev/depgate/internal/infrastructure/config"
	"github.com/depgate-dev/depgate/internal/infrastructure/redaction"
	"github.com/depgate-dev/depgate/internal/infrastructure/secrets"
	"github.com/depgate-dev/depgate/internal/infrastructure/sensitivedata"
	"github.com/depgate-dev/depgate/internal/orchestrator"
	"github.com/depgate-dev/depgate/internal/registry"
	registrymaven "github.com/depgate-dev/depgate/internal/registry/maven"
	registrynpm "github.com/depgate-dev/depgate/internal/registry/npm"
	registrynuget "github.com/depgate-dev/depgate/internal/registry/nuget"
	registrypypi "github.com/depgate-dev/depgate/internal/registry/pypi"
	"github.com/depgate-dev/depgate/internal/repository/enrich"
	"github.com/depgate-dev/depgate/internal/repository/provider"
	"github.com/depgate-dev/depgate/internal/repository/provider/github"
	"github.com/depgate-dev/depgate/internal/repository/provider/gitlab"
	"github.com/depgate-dev/depgate/internal/resolve"
	"github.com/depgate-dev/depgate/internal/resolve/mavenver"
	"github.com/depgate-dev/depgate/internal/resolve/npmver"
	"github.com/depgate-dev/depgate/internal/resolve/nugetver"
	"github.com/depgate-dev/depgate/internal/resolve/pypiver"
)

// Options configure the container: the --config path, the --set
// overrides, and the built-in policy preset selection collected from
// the command line.
type Options struct {
	ConfigPath string
	Overrides  []string
	// Preset selects the built-in policy layer: "default" (the
	// zero value resolves to this), "supply-chain", or
	// "supply-chain-strict". Per §4.12 this layer is always applied,
	// beneath user_config.policy and --set overrides.
	Preset string
	// MinReleaseAgeDays overrides the supply-chain preset's
	// release_age_days.min threshold; <= 0 uses the heuristics default.
	MinReleaseAgeDays int
	Logger            *slog.Logger
	// Redactor, when set, is reused as-is instead of constructing a new
	// one, so the Container's error-message redaction and the CLI's
	// stderr log redaction (cmd/depgate's setupLogging) share one
	// compiled pattern set.
	Redactor *redaction.Redactor
}

// Container bundles everything a subcommand needs to build an
// Orchestrator or a proxy Evaluator: the merged policy config, the
// registry clients, the version resolvers, and the redacting logger.
type Container struct {
	UserConfig *infraconfig.UserConfig
	PolicyCfg  domainpolicy.Config
	Registry   registry.Registry
	Resolver   *resolve.Resolver
	Secrets    *secrets.Resolver
	Redactor   *redaction.Redactor
	Provider   *sensitivedata.Provider
	Logger     *slog.Logger
}

// New builds a Container: loads --config, resolves provider tokens,
// constructs the registry/resolve tables, and merges the three policy
// layers (built-in preset < user config < --set overrides).
func New(ctx context.Context, opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	userCfg, err := infraconfig.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	overrides, err := infraconfig.ParseSetFlags(opts.Overrides)
	if err != nil {
		return nil, err
	}

	preset := opts.Preset
	if preset == "" {
		preset = orchestrator.PresetDefault
	}

	mergedPolicy, err := orchestrator.MergePolicy(orchestrator.PolicyLayers{
		BuiltInPreset: orchestrator.BuildPreset(preset, opts.MinReleaseAgeDays),
		UserConfig:    userCfg.Policy,
		Overrides:     overrides,
	})
	if err != nil {
		return nil, err
	}

	sensitiveProvider := sensitivedata.NewProvider()
	secretResolver := secrets.New(sensitiveProvider)
	githubToken := secretResolver.GitHubToken()
	gitlabToken := secretResolver.GitLabToken()

	redactor := opts.Redactor
	if redactor == nil {
		redactor, err = redaction.New(redaction.Config{})
		if err != nil {
			return nil, err
		}
	}

	providers := provider.Registry{
		"github": github.New(githubToken),
		"gitlab": gitlab.New(gitlabToken),
	}

	reg := registry.Registry{
		domain.Npm:   registrynpm.New(enrich.Providers(providers)),
		domain.PyPI:  registrypypi.New(enrich.Providers(providers)),
		domain.Maven: registrymaven.New(enrich.Providers(providers)),
		domain.NuGet: registrynuget.New(enrich.Providers(providers)),
	}

	npmClient := reg[domain.Npm].(*registrynpm.Client)
	pypiClient := reg[domain.PyPI].(*registrypypi.Client)
	mavenClient := reg[domain.Maven].(*registrymaven.Client)
	nugetClient := reg[domain.NuGet].(*registrynuget.Client)

	resolver := resolve.New(map[domain.Ecosystem]resolve.Ecosystem{
		domain.Npm:   npmver.Resolver{Fetch: npmClient.FetchCandidates},
		domain.PyPI:  pypiver.Resolver{Fetch: pypiClient.FetchCandidates},
		domain.Maven: mavenver.Resolver{Fetch: mavenClient.FetchCandidates},
		domain.NuGet: nugetver.Resolver{Fetch: nugetClient.FetchCandidates},
	})

	return &Container{
		UserConfig: userCfg,
		PolicyCfg:  mergedPolicy,
		Registry:   reg,
		Resolver:   resolver,
		Secrets:    secretResolver,
		Redactor:   redactor,
		Provider:   sensitiveProvider,
		Logger:     logger,
	}, nil
}

// OSMToken resolves the enrichment token lazily (it may require a
// subprocess call), tracking it for redaction as soon as it is read.
func (c *Container) OSMToken(ctx context.Context) (string, error) {
	return c.Secrets.OSMToken(ctx)
}
