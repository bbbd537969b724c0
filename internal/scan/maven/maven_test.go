package maven

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgate-dev/depgate/internal/scan"
)

func Test_Scan_ExtractsGroupColonArtifact(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/pom.xml", []byte(`<project>
  <dependencies>
    <dependency>
      <groupId>com.example</groupId>
      <artifactId>lib</artifactId>
      <version>1.0.0</version>
    </dependency>
    <dependency>
      <groupId>com.example</groupId>
      <artifactId>no-version</artifactId>
    </dependency>
  </dependencies>
</project>`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "com.example:lib", entries[0].Name)
	assert.Equal(t, "1.0.0", entries[0].RawSpec)
}

func Test_Scan_SkipsDependencyMissingCoordinate(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/pom.xml", []byte(`<project>
  <dependencies>
    <dependency>
      <artifactId>orphan</artifactId>
    </dependency>
  </dependencies>
</project>`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_Scan_NamespacedPOM_StillTraverses(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/pom.xml", []byte(`<project xmlns="http://maven.apache.org/POM/4.0.0">
  <dependencies>
    <dependency>
      <groupId>com.example</groupId>
      <artifactId>lib</artifactId>
      <version>2.0.0</version>
    </dependency>
  </dependencies>
</project>`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "com.example:lib", entries[0].Name)
}

func Test_Scan_InvalidXML_ReturnsEmptyNonFatal(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/pom.xml", []byte(`<project><dependencies><dependency>`), 0o644))

	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_Scan_MissingPom_ReturnsEmptyNonFatal(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	entries, err := (Scanner{}).Scan(fsys, scan.Options{Dir: "/proj"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
