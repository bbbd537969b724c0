package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_ResponseCache_SetGet(t *testing.T) {
	t.Parallel()
	c := NewResponseCache(time.Hour, 10, 1024)
	ok := c.Set("k", ResponseEntry{StatusCode: 200, Body: []byte("hello")})
	assert.True(t, ok)

	got, found := c.Get("k")
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), got.Body)
}

func Test_ResponseCache_RefusesOversizedBody(t *testing.T) {
	t.Parallel()
	c := NewResponseCache(time.Hour, 10, 100) // 10% of 100 = 10 bytes max
	ok := c.Set("k", ResponseEntry{StatusCode: 200, Body: make([]byte, 50)})
	assert.False(t, ok)

	_, found := c.Get("k")
	assert.False(t, found)
}

func Test_ResponseCache_EvictsToMakeRoomByBytes(t *testing.T) {
	t.Parallel()
	c := NewResponseCache(time.Hour, 100, 30)
	c.Set("a", ResponseEntry{Body: make([]byte, 10)})
	c.Set("b", ResponseEntry{Body: make([]byte, 10)})
	c.Set("c", ResponseEntry{Body: make([]byte, 10)})
	// Fourth insert requires evicting "a" (LRU) to stay within 30 bytes.
	c.Set("d", ResponseEntry{Body: make([]byte, 10)})

	_, foundA := c.Get("a")
	assert.False(t, foundA)
	_, foundD := c.Get("d")
	assert.True(t, foundD)
}

func Test_ResponseCache_ByteAccountingNeverNegative(t *testing.T) {
	t.Parallel()
	c := NewResponseCache(time.Hour, 10, 1024)
	c.Set("a", ResponseEntry{Body: make([]byte, 100)})
	c.Set("a", ResponseEntry{Body: make([]byte, 10)}) // overwrite, smaller
	c.Clear()
	assert.GreaterOrEqual(t, c.usedBytes, int64(0))
}

func Test_IsCacheableRequest(t *testing.T) {
	t.Parallel()
	assert.True(t, IsCacheableRequest(http.MethodGet, false))
	assert.False(t, IsCacheableRequest(http.MethodGet, true))
	assert.False(t, IsCacheableRequest(http.MethodPost, false))
}

func Test_IsCacheableResponse(t *testing.T) {
	t.Parallel()
	assert.True(t, IsCacheableResponse(http.StatusOK, http.Header{}))
	assert.False(t, IsCacheableResponse(http.StatusInternalServerError, http.Header{}))

	noStore := http.Header{"Cache-Control": []string{"no-store"}}
	assert.False(t, IsCacheableResponse(http.StatusOK, noStore))
}
