package reports

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/loomledger/loomledger/internal/shared"
)

type stubRepo struct {
	held   []HeldStock
	issued []IssueTotal
	calls  int
}

func (r *stubRepo) CurrentlyHeld(ctx context.Context, contractorID int64) ([]HeldStock, error) {
	r.calls++
	var out []HeldStock
	for _, h := range r.held {
		if contractorID == 0 || h.ContractorID == contractorID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *stubRepo) IssueHistory(ctx context.Context, contractorID int64) ([]IssueTotal, error) {
	r.calls++
	return r.issued, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleRepo() *stubRepo {
	return &stubRepo{
		held: []HeldStock{
			{ContractorID: 2, ContractorName: "Alice", StockID: 1, Type: "Silk", Quality: "A", NetWeightKg: decimal.RequireFromString("3.5")},
			{ContractorID: 2, ContractorName: "Alice", StockID: 4, Type: "Wool", Quality: "B", NetWeightKg: decimal.RequireFromString("1")},
			{ContractorID: 1, ContractorName: "Bob", StockID: 4, Type: "Wool", Quality: "B", NetWeightKg: decimal.RequireFromString("12")},
		},
		issued: []IssueTotal{
			{ContractorID: 1, ContractorName: "Bob", StockID: 4, Type: "Wool", Quality: "B", TotalIssuedKg: decimal.RequireFromString("40")},
		},
	}
}

func TestCurrentlyHeldGroupsByContractor(t *testing.T) {
	svc := NewService(sampleRepo(), nil, nil)

	groups, err := svc.CurrentlyHeld(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "Alice", groups[0].ContractorName)
	require.Len(t, groups[0].Items, 2)
	require.Equal(t, "Bob", groups[1].ContractorName)
	require.True(t, groups[1].Items[0].NetWeightKg.Equal(decimal.NewFromInt(12)))

	history, err := svc.IssueHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, history[0].Items, 1)
}

func TestReportsAreCachedUntilCommit(t *testing.T) {
	repo := sampleRepo()
	svc := NewService(repo, NewCache(newRedis(t), time.Minute), nil)
	ctx := context.Background()

	_, err := svc.CurrentlyHeld(ctx)
	require.NoError(t, err)
	_, err = svc.CurrentlyHeld(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	held, err := svc.ContractorHeld(ctx, 1)
	require.NoError(t, err)
	require.Len(t, held, 1)
	require.Equal(t, 2, repo.calls)

	svc.Committed(ctx, shared.CommitEvent{Entity: "order", EntityID: 1, Action: "created"})
	_, err = svc.CurrentlyHeld(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, repo.calls)
}

func TestCacheVersioning(t *testing.T) {
	cache := NewCache(newRedis(t), time.Minute)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "reports", "held", "0")
	require.NoError(t, err)
	require.Equal(t, "reports:held:0:1", key)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.BuildKey(ctx, "reports", "held", "0")
	require.NoError(t, err)
	require.Equal(t, "reports:held:0:2", key)

	var nilCache *Cache
	key, err = nilCache.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	require.Equal(t, "a:b", key)
	require.NoError(t, nilCache.Bump(ctx))
}
