package stock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ReportCache, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewReportCache(client, time.Minute)
	return cache, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestReportCacheVersionInitialises(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
}

func TestReportCacheBuildKeyCarriesVersion(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "stock", "expiry", "90")
	require.NoError(t, err)
	require.Equal(t, "stock:expiry:90:1", key)

	require.NoError(t, cache.Bump(ctx))

	key, err = cache.BuildKey(ctx, "stock", "expiry", "90")
	require.NoError(t, err)
	require.Equal(t, "stock:expiry:90:2", key)
}

func TestReportCacheFetchJSONCachesLoader(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return []ExpiryWarning{{Batch: Batch{ItemID: 7, LotCode: "L1"}, DaysRemaining: 12}}, nil
	}

	var first []ExpiryWarning
	require.NoError(t, cache.FetchJSON(ctx, "stock:expiry:90:1", &first, loader))
	require.Len(t, first, 1)
	require.Equal(t, 1, calls)

	var second []ExpiryWarning
	require.NoError(t, cache.FetchJSON(ctx, "stock:expiry:90:1", &second, loader))
	require.Len(t, second, 1)
	require.Equal(t, int64(7), second[0].Batch.ItemID)
	require.Equal(t, 1, calls, "second read must come from the cache")
}

func TestReportCacheBumpInvalidates(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return []ReorderWarning{{ItemID: 3}}, nil
	}

	key, err := cache.BuildKey(ctx, keyReorder())
	require.NoError(t, err)
	var out []ReorderWarning
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))

	require.NoError(t, cache.Bump(ctx))

	key, err = cache.BuildKey(ctx, keyReorder())
	require.NoError(t, err)
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 2, calls, "bumped version must miss the old entry")
}

func TestReportCacheNilPassthrough(t *testing.T) {
	var cache *ReportCache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "stock", "reorder")
	require.NoError(t, err)
	require.Equal(t, "stock:reorder", key)

	var out []ReorderWarning
	err = cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return []ReorderWarning{{ItemID: 5}}, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
}
