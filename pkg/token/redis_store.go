package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Amounts cross into Lua as decimal strings and go straight to HINCRBY and
// INCRBY, which parse them as 64-bit integers. Converting them to Lua numbers
// would round anything above 2^53.

// redisMintScript credits balances and raises supply in one step.
// KEYS[1] = balances hash, KEYS[2] = supply key
// ARGV = account1, amount1, account2, amount2, ...
var redisMintScript = redis.NewScript(`
for i = 1, #ARGV, 2 do
    redis.call("HINCRBY", KEYS[1], ARGV[i], ARGV[i + 1])
    redis.call("INCRBY", KEYS[2], ARGV[i + 1])
end
return 1
`)

// redisTransferScript moves tokens if the source can cover them.
// KEYS[1] = balances hash
// ARGV[1] = from, ARGV[2] = to, ARGV[3] = amount
// Returns 1 on success, 0 on insufficient funds. Both operands are
// canonical non-negative decimals, so the longer string is the larger value
// and equal lengths compare digit by digit.
var redisTransferScript = redis.NewScript(`
local balance = redis.call("HGET", KEYS[1], ARGV[1]) or "0"
local amount = ARGV[3]
if #balance < #amount or (#balance == #amount and balance < amount) then
    return 0
end
redis.call("HINCRBY", KEYS[1], ARGV[1], "-" .. amount)
redis.call("HINCRBY", KEYS[1], ARGV[2], amount)
return 1
`)

// amountArg formats v for a script, rejecting values Redis cannot hold.
func amountArg(v uint64) (string, error) {
	if v > MaxSupply {
		return "", fmt.Errorf("amount %d exceeds the 64-bit signed range", v)
	}
	return strconv.FormatUint(v, 10), nil
}

// RedisStorage implements Storage using Redis. Balances live in a single
// hash so both scripts touch keys in the same slot.
type RedisStorage struct {
	client      redis.UniversalClient
	balancesKey string
	supplyKey   string
}

// NewRedisStorage creates a store backed by Redis. namespace prefixes keys,
// e.g. "ecoproof".
func NewRedisStorage(client redis.UniversalClient, namespace string) *RedisStorage {
	tag := "{" + namespace + ":token}"
	return &RedisStorage{
		client:      client,
		balancesKey: tag + ":balances",
		supplyKey:   tag + ":supply",
	}
}

// NewRedisClient builds a client the way the rest of the stack does.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (s *RedisStorage) Balance(ctx context.Context, account string) (uint64, error) {
	v, err := s.client.HGet(ctx, s.balancesKey, account).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis balance: %w", err)
	}
	return v, nil
}

func (s *RedisStorage) TotalSupply(ctx context.Context) (uint64, error) {
	v, err := s.client.Get(ctx, s.supplyKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis supply: %w", err)
	}
	return v, nil
}

func (s *RedisStorage) Mint(ctx context.Context, credits []Credit) error {
	args := make([]interface{}, 0, len(credits)*2)
	for _, c := range credits {
		if c.Amount == 0 {
			continue
		}
		amount, err := amountArg(c.Amount)
		if err != nil {
			return fmt.Errorf("redis mint: %w", err)
		}
		args = append(args, c.Account, amount)
	}
	if len(args) == 0 {
		return nil
	}
	if err := redisMintScript.Run(ctx, s.client, []string{s.balancesKey, s.supplyKey}, args...).Err(); err != nil {
		return fmt.Errorf("redis mint: %w", err)
	}
	return nil
}

func (s *RedisStorage) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	arg, err := amountArg(amount)
	if err != nil {
		// No balance can exceed MaxSupply.
		return ErrInsufficientFunds
	}
	res, err := redisTransferScript.Run(ctx, s.client, []string{s.balancesKey}, from, to, arg).Int64()
	if err != nil {
		return fmt.Errorf("redis transfer: %w", err)
	}
	if res == 0 {
		return ErrInsufficientFunds
	}
	return nil
}
