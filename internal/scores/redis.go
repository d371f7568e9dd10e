package scores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "cv-screener:scores:"

// claimScript adds the first candidate that is not yet a member of the set and
// refreshes the key TTL. It returns -1 when every candidate is taken.
const claimScript = `
local ttl = tonumber(ARGV[1])
for i = 2, #ARGV do
  if redis.call("SADD", KEYS[1], ARGV[i]) == 1 then
    if ttl > 0 then
      redis.call("PEXPIRE", KEYS[1], ttl)
    end
    return tonumber(ARGV[i])
  end
end
return -1
`

// RedisRegistry keeps issued scores in a Redis set so that several processes can
// share one batch.
type RedisRegistry struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	script *redis.Script
}

// NewRedisRegistry stores scores under key. A positive ttl expires the set after
// the last allocation.
func NewRedisRegistry(client redis.Cmdable, key string, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		key:    key,
		ttl:    ttl,
		script: redis.NewScript(claimScript),
	}
}

// NewRedisPool returns a Pool of Redis registries keyed by prefix and posting.
func NewRedisPool(client redis.Cmdable, prefix string, ttl time.Duration) *Pool {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return NewPool(func(posting string) Registry {
		return NewRedisRegistry(client, prefix+posting, ttl)
	})
}

func (r *RedisRegistry) Allocate(ctx context.Context, preferred int) (int, error) {
	candidates := Candidates(preferred)
	args := make([]any, 0, len(candidates)+1)
	args = append(args, r.ttl.Milliseconds())
	for _, c := range candidates {
		args = append(args, c)
	}

	score, err := r.script.Run(ctx, r.client, []string{r.key}, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("claim score in %s: %w", r.key, err)
	}
	if score < 0 {
		return 0, ErrExhausted
	}
	return score, nil
}

func (r *RedisRegistry) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", r.key, err)
	}
	return nil
}
