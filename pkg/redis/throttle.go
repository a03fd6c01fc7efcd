package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript keeps one sorted-set member per admitted order, scored by entry
// time in milliseconds. Members older than the window are dropped first.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local entered = redis.call('ZCARD', key)
if entered >= max then
	return {0, 0}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, max - entered - 1}
`)

// OrderLimit caps order entry for one account over a sliding window
type OrderLimit struct {
	AccountID string
	MaxOrders int
	Window    time.Duration
}

// OrdersPerSecond is the usual order entry limit for an account
func OrdersPerSecond(accountID string, n int) OrderLimit {
	return OrderLimit{AccountID: accountID, MaxOrders: n, Window: time.Second}
}

// Throttle enforces OrderLimits in Redis, so every desk process sharing the
// instance counts against the same window
type Throttle struct {
	client *Client
	prefix string
}

// NewThrottle creates an order entry throttle. Keys live under prefix.
func NewThrottle(client *Client, prefix string) *Throttle {
	return &Throttle{client: client, prefix: prefix}
}

func (t *Throttle) key(accountID string) string {
	return fmt.Sprintf("%s:throttle:orders:%s", t.prefix, accountID)
}

// Admit records one order entry when the account is under its limit. It
// returns whether the order may proceed and how many entries are left in the
// window. A disabled client admits everything.
func (t *Throttle) Admit(ctx context.Context, l OrderLimit) (bool, int, error) {
	if !t.client.Enabled() {
		return true, l.MaxOrders, nil
	}

	now := time.Now().UnixMilli()
	res, err := admitScript.Run(ctx, t.client.Redis(), []string{t.key(l.AccountID)},
		now, l.MaxOrders, l.Window.Milliseconds(), uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("order throttle: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("order throttle: unexpected reply %v", res)
	}
	return res[0] == 1, int(res[1]), nil
}
