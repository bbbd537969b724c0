package parser

import (
	"testing"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/stretchr/testify/assert"
)

func Test_Parse_NpmUnscopedMetadata(t *testing.T) {
	t.Parallel()
	pr := Parse("/lodash", "")
	assert.Equal(t, domain.Npm, pr.RegistryType)
	assert.Equal(t, "lodash", pr.PackageName)
	assert.True(t, pr.IsMetadata)
}

func Test_Parse_NpmScopedMetadata(t *testing.T) {
	t.Parallel()
	pr := Parse("/@babel/core", "")
	assert.Equal(t, domain.Npm, pr.RegistryType)
	assert.Equal(t, "@babel/core", pr.PackageName)
}

func Test_Parse_NpmScopedTarball(t *testing.T) {
	t.Parallel()
	pr := Parse("/@babel/core/-/core-7.20.0.tgz", "")
	assert.Equal(t, domain.Npm, pr.RegistryType)
	assert.Equal(t, "@babel/core", pr.PackageName)
	assert.Equal(t, "7.20.0", pr.Version)
	assert.True(t, pr.IsTarball)
}

func Test_Parse_NpmTarball(t *testing.T) {
	t.Parallel()
	pr := Parse("/lodash/-/lodash-4.17.21.tgz", "")
	assert.Equal(t, domain.Npm, pr.RegistryType)
	assert.Equal(t, "lodash", pr.PackageName)
	assert.Equal(t, "4.17.21", pr.Version)
	assert.True(t, pr.IsTarball)
}

func Test_Parse_NpmTarball_MismatchedEmbeddedName(t *testing.T) {
	t.Parallel()
	// embedded name differs from path segment; must not match as a tarball
	pr := Parse("/lodash/-/other-4.17.21.tgz", "")
	assert.NotEqual(t, domain.Npm, pr.RegistryType)
}

func Test_Parse_PyPISimple(t *testing.T) {
	t.Parallel()
	pr := Parse("/simple/Django/", "")
	assert.Equal(t, domain.PyPI, pr.RegistryType)
	assert.Equal(t, "django", pr.PackageName)
	assert.True(t, pr.IsMetadata)
}

func Test_Parse_PyPIJSON(t *testing.T) {
	t.Parallel()
	pr := Parse("/pypi/requests/2.28.0/json", "")
	assert.Equal(t, domain.PyPI, pr.RegistryType)
	assert.Equal(t, "requests", pr.PackageName)
	assert.Equal(t, "2.28.0", pr.Version)
}

func Test_Parse_PyPIPackageTarball(t *testing.T) {
	t.Parallel()
	pr := Parse("/packages/ab/cd/requests-2.28.0.tar.gz", "")
	assert.Equal(t, domain.PyPI, pr.RegistryType)
	assert.Equal(t, "requests", pr.PackageName)
	assert.Equal(t, "2.28.0", pr.Version)
	assert.True(t, pr.IsTarball)
}

func Test_Parse_PyPIPackageTarball_DigitInName(t *testing.T) {
	t.Parallel()
	pr := Parse("/packages/ab/cd/py3-requests-2.28.0.tar.gz", "")
	assert.Equal(t, domain.PyPI, pr.RegistryType)
	assert.Equal(t, "py3-requests", pr.PackageName)
	assert.Equal(t, "2.28.0", pr.Version)
}

func Test_Parse_MavenArtifactMetadata(t *testing.T) {
	t.Parallel()
	pr := Parse("/com/fasterxml/jackson/core/jackson-core/maven-metadata.xml", "")
	assert.Equal(t, domain.Maven, pr.RegistryType)
	assert.Equal(t, "com.fasterxml.jackson.core:jackson-core", pr.PackageName)
	assert.True(t, pr.IsMetadata)
	assert.Empty(t, pr.Version)
}

func Test_Parse_MavenVersionMetadata(t *testing.T) {
	t.Parallel()
	pr := Parse("/com/fasterxml/jackson/core/jackson-core/2.14.0-SNAPSHOT/maven-metadata.xml", "")
	assert.Equal(t, domain.Maven, pr.RegistryType)
	assert.Equal(t, "com.fasterxml.jackson.core:jackson-core", pr.PackageName)
	assert.Equal(t, "2.14.0-SNAPSHOT", pr.Version)
}

func Test_Parse_MavenArtifact(t *testing.T) {
	t.Parallel()
	pr := Parse("/com/fasterxml/jackson/core/jackson-core/2.14.0/jackson-core-2.14.0.jar", "")
	assert.Equal(t, domain.Maven, pr.RegistryType)
	assert.Equal(t, "com.fasterxml.jackson.core:jackson-core", pr.PackageName)
	assert.Equal(t, "2.14.0", pr.Version)
	assert.True(t, pr.IsTarball)
}

func Test_Parse_NuGetRegistrationIndex(t *testing.T) {
	t.Parallel()
	pr := Parse("/v3/registration5-semver1/newtonsoft.json/index.json", "")
	assert.Equal(t, domain.NuGet, pr.RegistryType)
	assert.Equal(t, "newtonsoft.json", pr.PackageName)
	assert.True(t, pr.IsMetadata)
	assert.Empty(t, pr.Version)
}

func Test_Parse_NuGetRegistrationVersion(t *testing.T) {
	t.Parallel()
	pr := Parse("/v3/registration5-semver1/newtonsoft.json/13.0.1.json", "")
	assert.Equal(t, domain.NuGet, pr.RegistryType)
	assert.Equal(t, "newtonsoft.json", pr.PackageName)
	assert.Equal(t, "13.0.1", pr.Version)
}

func Test_Parse_NuGetFlatContainerPackage(t *testing.T) {
	t.Parallel()
	pr := Parse("/v3-flatcontainer/newtonsoft.json/13.0.1/newtonsoft.json.13.0.1.nupkg", "")
	assert.Equal(t, domain.NuGet, pr.RegistryType)
	assert.Equal(t, "newtonsoft.json", pr.PackageName)
	assert.Equal(t, "13.0.1", pr.Version)
	assert.True(t, pr.IsTarball)
}

func Test_Parse_HealthPathIsNotAPackage(t *testing.T) {
	t.Parallel()
	pr := Parse("/_depgate/health", "")
	assert.True(t, pr.Unknown())
}

func Test_Parse_HintTriedFirst(t *testing.T) {
	t.Parallel()
	pr := Parse("/grp/foo/1.0/foo-1.0.jar", domain.Maven)
	assert.Equal(t, domain.Maven, pr.RegistryType)
	assert.Equal(t, "grp:foo", pr.PackageName)
}

func Test_Parse_AutoDetectOrder_NpmLast(t *testing.T) {
	t.Parallel()
	// A bare single-segment path is only ever npm-shaped; verify it still
	// resolves even though npm is tried last in auto-detection.
	pr := Parse("/is-even", "")
	assert.Equal(t, domain.Npm, pr.RegistryType)
	assert.Equal(t, "is-even", pr.PackageName)
}
