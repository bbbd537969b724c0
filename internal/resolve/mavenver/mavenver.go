// Package mavenver implements Maven's maven-metadata.xml candidate
// sourcing and its bracket-syntax version ranges.
package mavenver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type FetchFunc func(ctx context.Context, groupArtifact string) ([]string, error)

// Resolver implements resolve.Ecosystem for Maven.
type Resolver struct {
	Fetch FetchFunc
}

func (r Resolver) FetchCandidates(ctx context.Context, identifier string) ([]string, error) {
	return r.Fetch(ctx, identifier)
}

// mavenVersion orders dotted numeric segments, with "-SNAPSHOT" sorting
// below the corresponding release.
type mavenVersion struct {
	raw      string
	segments []int
	snapshot bool
}

func parseMavenVersion(s string) mavenVersion {
	snapshot := strings.HasSuffix(s, "-SNAPSHOT")
	core := strings.TrimSuffix(s, "-SNAPSHOT")
	var segs []int
	for _, p := range strings.FieldsFunc(core, func(r rune) bool { return r == '.' || r == '-' }) {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		segs = append(segs, n)
	}
	return mavenVersion{raw: s, segments: segs, snapshot: snapshot}
}

func (v mavenVersion) less(o mavenVersion) bool {
	for i := 0; i < len(v.segments) || i < len(o.segments); i++ {
		var a, b int
		if i < len(v.segments) {
			a = v.segments[i]
		}
		if i < len(o.segments) {
			b = o.segments[i]
		}
		if a != b {
			return a < b
		}
	}
	if v.snapshot != o.snapshot {
		return v.snapshot // snapshot of the same numeric version sorts lower
	}
	return false
}

// Pick implements §4.1's Maven semantics, including the release/latest
// metadata preference and the single-element-bracket exact/prefix match.
func (r Resolver) Pick(spec string, candidates []string) (string, int, error) {
	if len(candidates) == 0 {
		return "", 0, fmt.Errorf("No versions available")
	}

	versions := make([]mavenVersion, 0, len(candidates))
	for _, c := range candidates {
		versions = append(versions, parseMavenVersion(c))
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].less(versions[j]) })

	if spec == "" || spec == "latest" {
		for i := len(versions) - 1; i >= 0; i-- {
			if !versions[i].snapshot {
				return versions[i].raw, len(versions), nil
			}
		}
		// All candidates are snapshots: §4.1 says fall back to the highest one.
		return versions[len(versions)-1].raw, len(versions), nil
	}

	if isSingleElementBracket(spec) {
		target := strings.Trim(spec, "[]")
		for i := len(versions) - 1; i >= 0; i-- {
			if versions[i].raw == target || strings.HasPrefix(versions[i].raw, target) {
				return versions[i].raw, len(versions), nil
			}
		}
		return "", len(versions), fmt.Errorf("no matching version")
	}

	lo, loIncl, hi, hiIncl, err := parseRange(spec)
	if err != nil {
		return "", len(versions), fmt.Errorf("invalid spec")
	}
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if inRange(v, lo, loIncl, hi, hiIncl) {
			return v.raw, len(versions), nil
		}
	}
	return "", len(versions), fmt.Errorf("no matching version")
}

func isSingleElementBracket(spec string) bool {
	return strings.HasPrefix(spec, "[") && strings.HasSuffix(spec, "]") && !strings.Contains(spec, ",")
}

var rangeRe = regexp.MustCompile(`^([\[(])\s*([^,]*)\s*,\s*([^\])]*)\s*([\])])$`)

func parseRange(spec string) (lo *mavenVersion, loIncl bool, hi *mavenVersion, hiIncl bool, err error) {
	m := rangeRe.FindStringSubmatch(spec)
	if m == nil {
		return nil, false, nil, false, fmt.Errorf("unparseable range: %s", spec)
	}
	loIncl = m[1] == "["
	hiIncl = m[4] == "]"
	if strings.TrimSpace(m[2]) != "" {
		v := parseMavenVersion(strings.TrimSpace(m[2]))
		lo = &v
	}
	if strings.TrimSpace(m[3]) != "" {
		v := parseMavenVersion(strings.TrimSpace(m[3]))
		hi = &v
	}
	return lo, loIncl, hi, hiIncl, nil
}

func inRange(v mavenVersion, lo *mavenVersion, loIncl bool, hi *mavenVersion, hiIncl bool) bool {
	if lo != nil {
		if loIncl {
			if v.less(*lo) {
				return false
			}
		} else if !lo.less(v) {
			return false
		}
	}
	if hi != nil {
		if hiIncl {
			if hi.less(v) {
				return false
			}
		} else if !v.less(*hi) {
			return false
		}
	}
	return true
}
