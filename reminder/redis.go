package reminder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix prefixes the Redis keys written by the gate.
const DefaultKeyPrefix = "privmsg:reminder:"

// checkScript stores the unread count with a TTL of the reminder interval,
// unless the same count is still stored. Returns 1 when it wrote.
var checkScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if last == ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// Redis is a Gate shared by every process using the same Redis.
// Each user is one key whose expiry is the reminder interval.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures the Redis gate.
type RedisOption func(*Redis)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis creates a gate backed by client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check implements Gate.
func (r *Redis) Check(ctx context.Context, userID string, unread int64, interval time.Duration) (bool, error) {
	ms := interval.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	wrote, err := checkScript.Run(ctx, r.client,
		[]string{r.prefix + userID},
		strconv.FormatInt(unread, 10), ms,
	).Int()
	if err != nil {
		return false, fmt.Errorf("reminder: check %s: %w", userID, err)
	}
	return wrote == 1 && unread > 0, nil
}
