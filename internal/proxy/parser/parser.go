// Package parser implements the Request Parser (§4.8): turning a registry
// request path into a ParsedRequest, auto-detecting registry type when no
// hint is available.
package parser

import (
	"regexp"
	"strings"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/resolve/pypiver"
)

// ParsedRequest is the normalized shape every registry's path maps to.
type ParsedRequest struct {
	RegistryType domain.Ecosystem
	PackageName  string
	Version      string
	IsMetadata   bool
	IsTarball    bool
	RawPath      string
}

// Unknown reports whether parsing failed to recognize a registry-specific
// shape at all (RegistryType is empty).
func (p ParsedRequest) Unknown() bool { return p.RegistryType == "" }

// Go's regexp engine (RE2) has no backreferences, so patterns that need to
// confirm a repeated segment (a tarball's embedded package name, a Maven
// artifact-version pair) capture loosely here and verify equality in Go
// after matching.
var (
	npmScopedMeta    = regexp.MustCompile(`^/(@[^/]+/[^/]+)(?:/([^/]+))?$`)
	npmMeta          = regexp.MustCompile(`^/([^@/][^/]*)(?:/([^/]+))?$`)
	npmScopedTarball = regexp.MustCompile(`^/(@[^/]+)/([^/]+)/-/([^/]+)-([^/]+)\.tgz$`)
	npmTarball       = regexp.MustCompile(`^/([^@/][^/]*)/-/([^/]+)-([^/]+)\.tgz$`)

	pypiSimple  = regexp.MustCompile(`^/simple/([^/]+)/?$`)
	pypiJSON    = regexp.MustCompile(`^/pypi/([^/]+)(?:/([^/]+))?/json/?$`)
	pypiPackage = regexp.MustCompile(`^/packages/.+/([A-Za-z0-9_.+-]+)-(\d[A-Za-z0-9_.+-]*)\.(tar\.gz|zip|whl)$`)

	mavenArtifactMeta = regexp.MustCompile(`^/(.+)/([^/]+)/maven-metadata\.xml$`)
	mavenVersionMeta  = regexp.MustCompile(`^/(.+)/([^/]+)/([^/]+)/maven-metadata\.xml$`)
	mavenArtifact     = regexp.MustCompile(`^/(.+)/([^/]+)/([^/]+)/([^/]+)-([^/]+)\.(pom|jar|war|aar)$`)

	nugetRegIndex  = regexp.MustCompile(`^/v3/registration\d*(?:-semver\d+)?/([^/]+)/index\.json$`)
	nugetRegVer    = regexp.MustCompile(`^/v3/registration\d*(?:-semver\d+)?/([^/]+)/([^/]+)\.json$`)
	nugetFlatIndex = regexp.MustCompile(`^/v3-flatcontainer/([^/]+)/index\.json$`)
	nugetFlatPkg   = regexp.MustCompile(`^/v3-flatcontainer/([^/]+)/([^/]+)/([^/]+)\.([^/]+)\.nupkg$`)
)

// Parse detects the registry and parses path into a ParsedRequest. hint,
// when non-empty, is tried first (derived from User-Agent/Accept by the
// caller); auto-detection tries PyPI, Maven, NuGet, then npm, since npm's
// path shape is the most generic and must be tried last.
func Parse(path string, hint domain.Ecosystem) ParsedRequest {
	order := []domain.Ecosystem{domain.PyPI, domain.Maven, domain.NuGet, domain.Npm}
	if hint != "" {
		order = prioritize(order, hint)
	}

	for _, eco := range order {
		if pr, ok := parseFor(eco, path); ok {
			return pr
		}
	}
	return ParsedRequest{RawPath: path}
}

func prioritize(order []domain.Ecosystem, hint domain.Ecosystem) []domain.Ecosystem {
	out := []domain.Ecosystem{hint}
	for _, e := range order {
		if e != hint {
			out = append(out, e)
		}
	}
	return out
}

func parseFor(eco domain.Ecosystem, path string) (ParsedRequest, bool) {
	switch eco {
	case domain.PyPI:
		return parsePyPI(path)
	case domain.Maven:
		return parseMaven(path)
	case domain.NuGet:
		return parseNuGet(path)
	case domain.Npm:
		return parseNpm(path)
	}
	return ParsedRequest{}, false
}

func parseNpm(path string) (ParsedRequest, bool) {
	if m := npmScopedTarball.FindStringSubmatch(path); m != nil && m[2] == m[3] {
		return ParsedRequest{RegistryType: domain.Npm, PackageName: m[1] + "/" + m[2], Version: m[4], IsTarball: true, RawPath: path}, true
	}
	if m := npmTarball.FindStringSubmatch(path); m != nil && m[1] == m[2] {
		return ParsedRequest{RegistryType: domain.Npm, PackageName: m[1], Version: m[3], IsTarball: true, RawPath: path}, true
	}
	if m := npmScopedMeta.FindStringSubmatch(path); m != nil {
		return ParsedRequest{RegistryType: domain.Npm, PackageName: m[1], Version: m[2], IsMetadata: true, RawPath: path}, true
	}
	if m := npmMeta.FindStringSubmatch(path); m != nil && m[1] != "-" {
		return ParsedRequest{RegistryType: domain.Npm, PackageName: m[1], Version: m[2], IsMetadata: true, RawPath: path}, true
	}
	return ParsedRequest{}, false
}

func parsePyPI(path string) (ParsedRequest, bool) {
	if m := pypiSimple.FindStringSubmatch(path); m != nil {
		return ParsedRequest{RegistryType: domain.PyPI, PackageName: pypiver.NormalizeName(m[1]), IsMetadata: true, RawPath: path}, true
	}
	if m := pypiJSON.FindStringSubmatch(path); m != nil {
		return ParsedRequest{RegistryType: domain.PyPI, PackageName: pypiver.NormalizeName(m[1]), Version: m[2], IsMetadata: true, RawPath: path}, true
	}
	if m := pypiPackage.FindStringSubmatch(path); m != nil {
		name, version := splitWheelLikeName(m[1], m[2])
		return ParsedRequest{RegistryType: domain.PyPI, PackageName: pypiver.NormalizeName(name), Version: version, IsTarball: true, RawPath: path}, true
	}
	return ParsedRequest{}, false
}

// splitWheelLikeName reconciles pypiPackage's greedy name capture against
// package names that themselves contain digits (e.g. "py3-foo-1.2.3.tar.gz"
// vs "foo2-1.0.tar.gz"): the regex's [A-Za-z0-9_.+-]+ name group can run
// past the real name/version boundary when an internal token looks
// version-like, so reassemble by splitting the full "name-version" stem on
// its last hyphen-prefixed digit-led token, per §4.8.
func splitWheelLikeName(namePart, verPart string) (string, string) {
	stem := namePart + "-" + verPart
	segments := strings.Split(stem, "-")
	for i := len(segments) - 1; i > 0; i-- {
		if startsWithDigit(segments[i]) {
			return strings.Join(segments[:i], "-"), strings.Join(segments[i:], "-")
		}
	}
	return namePart, verPart
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func parseMaven(path string) (ParsedRequest, bool) {
	// groupId itself contains slashes, so mavenVersionMeta's greedy group1
	// will happily absorb an extra segment and misread an artifact-level
	// metadata path as a version-level one. Only accept the version match
	// when the trailing segment actually looks like a version.
	if m := mavenVersionMeta.FindStringSubmatch(path); m != nil && looksLikeVersion(m[3]) {
		return ParsedRequest{RegistryType: domain.Maven, PackageName: coordFromPath(m[1], m[2]), Version: m[3], IsMetadata: true, RawPath: path}, true
	}
	if m := mavenArtifactMeta.FindStringSubmatch(path); m != nil {
		return ParsedRequest{RegistryType: domain.Maven, PackageName: coordFromPath(m[1], m[2]), IsMetadata: true, RawPath: path}, true
	}
	if m := mavenArtifact.FindStringSubmatch(path); m != nil && m[2] == m[4] && m[3] == m[5] {
		return ParsedRequest{RegistryType: domain.Maven, PackageName: coordFromPath(m[1], m[2]), Version: m[3], IsTarball: true, RawPath: path}, true
	}
	return ParsedRequest{}, false
}

func looksLikeVersion(s string) bool {
	return s != "" && startsWithDigit(s)
}

func coordFromPath(groupPath, artifact string) string {
	group := strings.ReplaceAll(strings.Trim(groupPath, "/"), "/", ".")
	return group + ":" + artifact
}

func parseNuGet(path string) (ParsedRequest, bool) {
	lower := strings.ToLower(path)
	if m := nugetFlatPkg.FindStringSubmatch(lower); m != nil && m[1] == m[3] && m[2] == m[4] {
		return ParsedRequest{RegistryType: domain.NuGet, PackageName: m[1], Version: m[2], IsTarball: true, RawPath: path}, true
	}
	if m := nugetFlatIndex.FindStringSubmatch(lower); m != nil {
		return ParsedRequest{RegistryType: domain.NuGet, PackageName: m[1], IsMetadata: true, RawPath: path}, true
	}
	if m := nugetRegIndex.FindStringSubmatch(lower); m != nil {
		return ParsedRequest{RegistryType: domain.NuGet, PackageName: m[1], IsMetadata: true, RawPath: path}, true
	}
	if m := nugetRegVer.FindStringSubmatch(lower); m != nil {
		return ParsedRequest{RegistryType: domain.NuGet, PackageName: m[1], Version: m[2], IsMetadata: true, RawPath: path}, true
	}
	return ParsedRequest{}, false
}
