// Package npmver implements npm's semver-with-extensions resolution
// semantics: caret/tilde ranges, x-ranges, hyphen ranges, and combinators,
// built on Masterminds/semver/v3.
package npmver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// FetchFunc retrieves the packument's version list for a package name. The
// registry client supplies the real implementation; tests inject a stub.
type FetchFunc func(ctx context.Context, name string) ([]string, error)

// Resolver implements resolve.Ecosystem for npm.
type Resolver struct {
	Fetch FetchFunc
}

func (r Resolver) FetchCandidates(ctx context.Context, identifier string) ([]string, error) {
	return r.Fetch(ctx, identifier)
}

var prereleaseHint = regexp.MustCompile(`(?i)pre|rc|alpha|beta`)

// Pick implements §4.1's npm semantics: "latest" (empty spec or the literal
// string) picks the highest non-prerelease version unless the spec text
// itself asks for prereleases.
func (r Resolver) Pick(spec string, candidates []string) (string, int, error) {
	if len(candidates) == 0 {
		return "", 0, fmt.Errorf("No versions available")
	}

	versions := make([]*semver.Version, 0, len(candidates))
	for _, c := range candidates {
		v, err := semver.NewVersion(c)
		if err != nil {
			continue // malformed candidate versions are skipped, not fatal
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return "", 0, fmt.Errorf("No versions available")
	}
	sort.Sort(semver.Collection(versions))

	if spec == "" || spec == "latest" {
		allowPrerelease := prereleaseHint.MatchString(spec)
		v := highest(versions, allowPrerelease)
		if v == nil {
			return "", len(versions), fmt.Errorf("No versions available")
		}
		return v.Original(), len(versions), nil
	}

	constraint, err := semver.NewConstraint(normalizeNpmRange(spec))
	if err != nil {
		return "", len(versions), fmt.Errorf("invalid spec")
	}

	allowPrerelease := prereleaseHint.MatchString(spec)
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if !allowPrerelease && v.Prerelease() != "" {
			continue
		}
		if constraint.Check(v) {
			return v.Original(), len(versions), nil
		}
	}
	return "", len(versions), fmt.Errorf("no matching version")
}

func highest(versions []*semver.Version, allowPrerelease bool) *semver.Version {
	for i := len(versions) - 1; i >= 0; i-- {
		if allowPrerelease || versions[i].Prerelease() == "" {
			return versions[i]
		}
	}
	return nil
}

// normalizeNpmRange turns npm's partial-version shorthand ("1.2.x", "1.x",
// "1") into comparator forms Masterminds/semver accepts, before applying
// the constraint.
func normalizeNpmRange(spec string) string {
	spec = strings.TrimSpace(spec)
	replacer := strings.NewReplacer(".x", ".*", ".X", ".*")
	return replacer.Replace(spec)
}
