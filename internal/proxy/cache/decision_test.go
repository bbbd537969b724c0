package cache

import (
	"testing"
	"time"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/stretchr/testify/assert"
)

func Test_DecisionCache_SetGet(t *testing.T) {
	t.Parallel()
	c := NewDecisionCache(time.Hour, 10)
	key := Key("npm", "lodash", "4.17.21")
	c.Set(key, DecisionEntry{Decision: domain.Allow})

	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, domain.Allow, got.Decision)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func Test_DecisionCache_MissOnUnknownKey(t *testing.T) {
	t.Parallel()
	c := NewDecisionCache(time.Hour, 10)
	_, ok := c.Get(Key("npm", "nope", "latest"))
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func Test_DecisionCache_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	c := NewDecisionCache(time.Millisecond, 10)
	key := Key("pypi", "requests", "2.28.0")
	c.Set(key, DecisionEntry{Decision: domain.Deny})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func Test_DecisionCache_EvictsOldestTenPercentOnOverflow(t *testing.T) {
	t.Parallel()
	c := NewDecisionCache(time.Hour, 10)
	for i := 0; i < 10; i++ {
		c.Set(Key("npm", "pkg", string(rune('a'+i))), DecisionEntry{Decision: domain.Allow})
	}
	// 11th insert should trigger eviction of the oldest (~10%, minimum 1).
	c.Set(Key("npm", "pkg", "k"), DecisionEntry{Decision: domain.Allow})

	_, stillThere := c.Get(Key("npm", "pkg", "a"))
	assert.False(t, stillThere, "oldest entry should have been evicted")
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func Test_DecisionCache_Clear(t *testing.T) {
	t.Parallel()
	c := NewDecisionCache(time.Hour, 10)
	key := Key("maven", "com.example:lib", "1.0.0")
	c.Set(key, DecisionEntry{Decision: domain.Allow})
	c.Clear()

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func Test_Key_DefaultsVersionToLatest(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "npm:lodash:latest", Key("npm", "lodash", ""))
}
