// Package versionmatch matches a resolved package version against a
// repository's tags/releases, trying strategies in a fixed order per §4.3.
package versionmatch

import (
	"regexp"
	"strings"
)

// Result is the outcome of matching a version against a set of candidate
// tag/release names.
type Result struct {
	Matched      bool
	MatchType    string // "exact" | "v-prefix" | "suffix-normalized" | "pattern"
	TagOrRelease string
}

var releaseSuffixes = regexp.MustCompile(`(?i)\.(RELEASE|Final|GA)$`)

// Match tries exact, v-prefix, suffix-normalized, then (if pattern is
// non-empty) user-pattern matching, first hit wins. pattern may contain the
// literal placeholder "<v>" which is substituted with version before being
// compiled as a regexp.
func Match(version string, candidates []string, pattern string) Result {
	for _, c := range candidates {
		if c == version {
			return Result{Matched: true, MatchType: "exact", TagOrRelease: c}
		}
	}

	vPrefixed := "v" + version
	for _, c := range candidates {
		if c == vPrefixed {
			return Result{Matched: true, MatchType: "v-prefix", TagOrRelease: c}
		}
	}

	normalizedVersion := normalizeSuffix(version)
	for _, c := range candidates {
		if normalizeSuffix(c) == normalizedVersion {
			return Result{Matched: true, MatchType: "suffix-normalized", TagOrRelease: c}
		}
	}

	if pattern != "" {
		expanded := strings.ReplaceAll(pattern, "<v>", regexp.QuoteMeta(version))
		if re, err := regexp.Compile(expanded); err == nil {
			for _, c := range candidates {
				if re.MatchString(c) {
					return Result{Matched: true, MatchType: "pattern", TagOrRelease: c}
				}
			}
		}
	}

	return Result{Matched: false}
}

func normalizeSuffix(s string) string {
	return strings.ToLower(releaseSuffixes.ReplaceAllString(s, ""))
}
