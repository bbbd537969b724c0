// Package nugetver implements NuGet's semver-compatible resolution, where
// "latest" excludes prereleases and package IDs are handled
// case-insensitively by the caller before reaching this package.
package nugetver

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

type FetchFunc func(ctx context.Context, id string) ([]string, error)

// Resolver implements resolve.Ecosystem for NuGet.
type Resolver struct {
	Fetch FetchFunc
}

func (r Resolver) FetchCandidates(ctx context.Context, identifier string) ([]string, error) {
	return r.Fetch(ctx, identifier)
}

func (r Resolver) Pick(spec string, candidates []string) (string, int, error) {
	if len(candidates) == 0 {
		return "", 0, fmt.Errorf("No versions available")
	}

	versions := make([]*semver.Version, 0, len(candidates))
	for _, c := range candidates {
		v, err := semver.NewVersion(c)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return "", 0, fmt.Errorf("No versions available")
	}
	sort.Sort(semver.Collection(versions))

	if spec == "" || spec == "latest" {
		for i := len(versions) - 1; i >= 0; i-- {
			if versions[i].Prerelease() == "" {
				return versions[i].Original(), len(versions), nil
			}
		}
		return "", len(versions), fmt.Errorf("No versions available")
	}

	constraint, err := semver.NewConstraint(spec)
	if err != nil {
		return "", len(versions), fmt.Errorf("invalid spec")
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if constraint.Check(versions[i]) {
			return versions[i].Original(), len(versions), nil
		}
	}
	return "", len(versions), fmt.Errorf("no matching version")
}
