package receipt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCachePutGetRoundTrip(t *testing.T) {
	c := NewCache(time.Minute)
	result := VerifyResult{Valid: true, Receipt: Receipt{ID: "r1"}}

	c.Put("token-a", "content-1", result)

	got, ok := c.Get("token-a", "content-1")
	require.True(t, ok)
	require.Equal(t, "r1", got.Receipt.ID)
}

func TestCacheMissOnDifferentContentID(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put("token-a", "content-1", VerifyResult{Valid: true})

	_, ok := c.Get("token-a", "content-2")
	require.False(t, ok)
}

func TestCacheExpiresEntries(t *testing.T) {
	c := NewCache(time.Millisecond)
	c.Put("token-a", "content-1", VerifyResult{Valid: true})

	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("token-a", "content-1")
	require.False(t, ok)
}

func TestCacheDefaultsTTLWhenZero(t *testing.T) {
	c := NewCache(0)
	require.Equal(t, DefaultCacheTTL, c.ttl)
}
