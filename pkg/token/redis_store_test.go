package token

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

func TestRedisStorage_KeysShareHashSlot(t *testing.T) {
	s := NewRedisStorage(NewRedisClient("localhost:0", "", 0), "ecoproof")
	assert.Equal(t, "{ecoproof:token}:balances", s.balancesKey)
	assert.Equal(t, "{ecoproof:token}:supply", s.supplyKey)
}

func TestAmountArg(t *testing.T) {
	got, err := amountArg(1<<53 + 1)
	require.NoError(t, err)
	assert.Equal(t, "9007199254740993", got)

	_, err = amountArg(MaxSupply + 1)
	assert.Error(t, err)
}

// liveRedis connects to REDIS_ADDR (default localhost:6379) and skips the
// test when no server answers. Each test gets its own namespace.
func liveRedis(t *testing.T) *RedisStorage {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	s := NewRedisStorage(client, fmt.Sprintf("ecoproof-test-%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = client.Del(context.Background(), s.balancesKey, s.supplyKey).Err()
	})
	return s
}

func TestRedisStorage_Integration(t *testing.T) {
	ctx := context.Background()
	s := liveRedis(t)
	l := NewLedger(s)

	// Mint conserves supply.
	require.NoError(t, l.Mint(ctx, []Credit{{"alice", 90}, {"reserve", 10}, {"alice", 5}}))
	a, err := l.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	r, err := l.BalanceOf(ctx, "reserve")
	require.NoError(t, err)
	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(95), a)
	assert.Equal(t, uint64(10), r)
	assert.Equal(t, a+r, supply)

	// A short source moves nothing.
	err = l.Transfer(ctx, "alice", "escrow", 96)
	assert.ErrorIs(t, err, contracts.KindInsufficientBalance)
	err = l.Transfer(ctx, "nobody", "escrow", 1)
	assert.ErrorIs(t, err, contracts.KindInsufficientBalance)
	a, _ = l.BalanceOf(ctx, "alice")
	e, _ := l.BalanceOf(ctx, "escrow")
	assert.Equal(t, uint64(95), a)
	assert.Zero(t, e)

	// Equal-length operands compare by value, not as floats.
	require.NoError(t, l.Transfer(ctx, "alice", "escrow", 95))
	a, _ = l.BalanceOf(ctx, "alice")
	e, _ = l.BalanceOf(ctx, "escrow")
	assert.Zero(t, a)
	assert.Equal(t, uint64(95), e)
}

func TestRedisStorage_LargeAmountsAreExact(t *testing.T) {
	ctx := context.Background()
	s := liveRedis(t)
	l := NewLedger(s)

	const pow53 = uint64(1) << 53
	const above53 = pow53 + 1
	const huge = uint64(123_456_789_012_345_678) // above 1e17
	require.NoError(t, l.Mint(ctx, []Credit{{"alice", above53}, {"bob", huge}, {"erin", pow53}}))

	a, err := l.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	b, err := l.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, above53, a)
	assert.Equal(t, huge, b)
	assert.Equal(t, above53+huge+pow53, supply)

	// 2^53+1 and 2^53 are the same double, so only an integer comparison
	// refuses this.
	err = l.Transfer(ctx, "erin", "carol", above53)
	assert.ErrorIs(t, err, contracts.KindInsufficientBalance)
	require.NoError(t, l.Transfer(ctx, "alice", "carol", above53))
	c, _ := l.BalanceOf(ctx, "carol")
	assert.Equal(t, above53, c)
	a, _ = l.BalanceOf(ctx, "alice")
	assert.Zero(t, a)

	// The remaining headroom can still be minted exactly.
	rest := MaxSupply - supply
	require.NoError(t, l.Mint(ctx, []Credit{{"dave", rest}}))
	supply, _ = l.TotalSupply(ctx)
	assert.Equal(t, uint64(MaxSupply), supply)
	err = l.Mint(ctx, []Credit{{"dave", 1}})
	assert.ErrorIs(t, err, contracts.KindInvalidInput)
}
