// Package cache keeps a read copy of the treasury in Redis. Writers store
// the snapshot they committed; readers fill it on miss. An entry is never
// replaced by an older version of the treasury.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

const DefaultTTL = 30 * time.Second

// SnapshotKey is versioned so a format change never reads an old entry. It
// holds a hash with the treasury version and the encoded snapshot.
const SnapshotKey = "treasury:v2:snapshot"

const (
	fieldVersion = "version"
	fieldData    = "data"
)

// setIfNewer writes the snapshot unless the stored one is at the same or a
// later version. Returns 1 when written.
const setIfNewer = `
	local current = redis.call("HGET", KEYS[1], "version")
	if current and tonumber(current) >= tonumber(ARGV[1]) then
		return 0
	end
	redis.call("HSET", KEYS[1], "version", ARGV[1], "data", ARGV[2])
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
	return 1
`

type TreasuryCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ service.SnapshotCache = (*TreasuryCache)(nil)

func New(client redis.Cmdable, ttl time.Duration) *TreasuryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TreasuryCache{client: client, ttl: ttl}
}

type snapshot struct {
	Authority             string    `json:"authority"`
	Vault                 string    `json:"vault"`
	TotalDeposits         uint64    `json:"total_deposits"`
	TotalWithdrawals      uint64    `json:"total_withdrawals"`
	WithdrawalLimitPerDay uint64    `json:"withdrawal_limit_per_day"`
	MinTreasuryBalance    uint64    `json:"min_treasury_balance"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	LastUpdate            time.Time `json:"last_update"`
	Version               uint64    `json:"version"`
}

func (c *TreasuryCache) Get(ctx context.Context) (treasury.Treasury, bool, error) {
	data, err := c.client.HGet(ctx, SnapshotKey, fieldData).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return treasury.Treasury{}, false, nil
		}
		return treasury.Treasury{}, false, fmt.Errorf("get treasury snapshot: %w", err)
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return treasury.Treasury{}, false, fmt.Errorf("decode treasury snapshot: %w", err)
	}
	return treasury.Treasury{
		Authority:             s.Authority,
		Vault:                 s.Vault,
		TotalDeposits:         s.TotalDeposits,
		TotalWithdrawals:      s.TotalWithdrawals,
		WithdrawalLimitPerDay: s.WithdrawalLimitPerDay,
		MinTreasuryBalance:    s.MinTreasuryBalance,
		IsActive:              s.IsActive,
		CreatedAt:             s.CreatedAt.UTC(),
		LastUpdate:            s.LastUpdate.UTC(),
		Version:               s.Version,
	}, true, nil
}

// Set stores t unless the cache already holds t.Version or a later one.
func (c *TreasuryCache) Set(ctx context.Context, t treasury.Treasury) error {
	data, err := json.Marshal(snapshot{
		Authority:             t.Authority,
		Vault:                 t.Vault,
		TotalDeposits:         t.TotalDeposits,
		TotalWithdrawals:      t.TotalWithdrawals,
		WithdrawalLimitPerDay: t.WithdrawalLimitPerDay,
		MinTreasuryBalance:    t.MinTreasuryBalance,
		IsActive:              t.IsActive,
		CreatedAt:             t.CreatedAt,
		LastUpdate:            t.LastUpdate,
		Version:               t.Version,
	})
	if err != nil {
		return fmt.Errorf("encode treasury snapshot: %w", err)
	}

	err = c.client.Eval(ctx, setIfNewer, []string{SnapshotKey},
		strconv.FormatUint(t.Version, 10), data, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("set treasury snapshot: %w", err)
	}
	return nil
}
