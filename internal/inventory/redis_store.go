package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	stockKey        = "inventory:stock"
	processedPrefix = "inventory:processed:"

	// DefaultClaimTTL outlives a decision including its publish retries
	DefaultClaimTTL = 30 * time.Second
)

// reserveScript checks and decrements one hash field in a single step so
// several inventory instances can share the ledger.
var reserveScript = redis.NewScript(`
local stock = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local qty = tonumber(ARGV[2])
if stock >= qty then
  local remaining = redis.call('HINCRBY', KEYS[1], ARGV[1], -qty)
  return {1, stock, remaining}
end
return {0, stock, stock}
`)

// RedisLedger keeps stock in a Redis hash
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger seeds items that are not yet present. Existing counts win,
// so restarting a service never refills stock.
func NewRedisLedger(ctx context.Context, client *redis.Client, seed map[string]int) (*RedisLedger, error) {
	for item, qty := range seed {
		if err := client.HSetNX(ctx, stockKey, item, qty).Err(); err != nil {
			return nil, fmt.Errorf("failed to seed stock for %s: %w", item, err)
		}
	}
	return &RedisLedger{client: client}, nil
}

func (l *RedisLedger) Reserve(ctx context.Context, item string, qty int) (Reservation, error) {
	res, err := reserveScript.Run(ctx, l.client, []string{stockKey}, item, qty).Int64Slice()
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to reserve %s: %w", item, err)
	}
	if len(res) != 3 {
		return Reservation{}, fmt.Errorf("unexpected reserve reply %v", res)
	}

	return Reservation{
		Item:      item,
		Requested: qty,
		Available: int(res[1]),
		Remaining: int(res[2]),
		OK:        res[0] == 1,
	}, nil
}

func (l *RedisLedger) Release(ctx context.Context, item string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("release of negative quantity %d", qty)
	}
	if err := l.client.HIncrBy(ctx, stockKey, item, int64(qty)).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", item, err)
	}
	return nil
}

func (l *RedisLedger) Snapshot(ctx context.Context) (map[string]int, error) {
	raw, err := l.client.HGetAll(ctx, stockKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stock: %w", err)
	}

	stock := make(map[string]int, len(raw))
	for item, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt stock for %s: %w", item, err)
		}
		stock[item] = n
	}
	return stock, nil
}

// claimScript takes an order for one worker unless it is already claimed
// or processed. Replies 0 acquired, 1 processed, 2 in flight.
var claimScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 0
end
if v == ARGV[3] then
  return 1
end
return 2
`)

// unclaimScript drops a claim only while this worker still owns it.
var unclaimScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

const processedValue = "done"

// RedisProcessedSet stores one key per order: a short-lived claim while a
// worker decides it, then an expiring processed marker.
type RedisProcessedSet struct {
	client   *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
	owner    string
}

// NewRedisProcessedSet builds the set; ttl <= 0 keeps processed markers
// forever. claimTTL bounds how long a crashed worker can block an order.
func NewRedisProcessedSet(client *redis.Client, ttl, claimTTL time.Duration) *RedisProcessedSet {
	if ttl < 0 {
		ttl = 0
	}
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &RedisProcessedSet{
		client:   client,
		ttl:      ttl,
		claimTTL: claimTTL,
		owner:    "pending:" + uuid.NewString(),
	}
}

func (s *RedisProcessedSet) Claim(ctx context.Context, orderID string) (ClaimResult, error) {
	res, err := claimScript.Run(ctx, s.client, []string{processedPrefix + orderID},
		s.owner, s.claimTTL.Milliseconds(), processedValue).Int()
	if err != nil {
		return ClaimInFlight, fmt.Errorf("failed to claim order %s: %w", orderID, err)
	}

	switch res {
	case 0:
		return ClaimAcquired, nil
	case 1:
		return ClaimProcessed, nil
	default:
		return ClaimInFlight, nil
	}
}

func (s *RedisProcessedSet) Seen(ctx context.Context, orderID string) (bool, error) {
	v, err := s.client.Get(ctx, processedPrefix+orderID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed order %s: %w", orderID, err)
	}
	return v == processedValue, nil
}

// Mark replaces the claim with the processed marker
func (s *RedisProcessedSet) Mark(ctx context.Context, orderID string) error {
	if err := s.client.Set(ctx, processedPrefix+orderID, processedValue, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark order %s processed: %w", orderID, err)
	}
	return nil
}

func (s *RedisProcessedSet) Unclaim(ctx context.Context, orderID string) error {
	if err := unclaimScript.Run(ctx, s.client, []string{processedPrefix + orderID}, s.owner).Err(); err != nil {
		return fmt.Errorf("failed to release claim on order %s: %w", orderID, err)
	}
	return nil
}
