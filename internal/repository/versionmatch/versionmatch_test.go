package versionmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Match_Exact(t *testing.T) {
	t.Parallel()
	r := Match("1.2.3", []string{"1.2.3", "1.2.4"}, "")
	assert.True(t, r.Matched)
	assert.Equal(t, "exact", r.MatchType)
}

func Test_Match_VPrefix(t *testing.T) {
	t.Parallel()
	r := Match("1.2.3", []string{"v1.2.3"}, "")
	assert.True(t, r.Matched)
	assert.Equal(t, "v-prefix", r.MatchType)
}

func Test_Match_SuffixNormalized(t *testing.T) {
	t.Parallel()
	r := Match("1.2.3", []string{"1.2.3.RELEASE"}, "")
	assert.True(t, r.Matched)
	assert.Equal(t, "suffix-normalized", r.MatchType)
}

func Test_Match_Idempotent(t *testing.T) {
	t.Parallel()
	candidates := []string{"v2.0.0"}
	r1 := Match("2.0.0", candidates, "")
	r2 := Match("2.0.0", candidates, "")
	assert.Equal(t, r1, r2)
}

func Test_Match_NoMatch(t *testing.T) {
	t.Parallel()
	r := Match("9.9.9", []string{"1.0.0"}, "")
	assert.False(t, r.Matched)
}
