package communities

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// The list keeps insertion order and display case; the set holds lowercase
// names so membership checks ignore case. Both change in one script call.
var appendScript = goredis.NewScript(`
if redis.call('sadd', KEYS[2], string.lower(ARGV[1])) == 1 then
  redis.call('rpush', KEYS[1], ARGV[1])
  return 1
end
return 0
`)

var removeScript = goredis.NewScript(`
local lower = string.lower(ARGV[1])
if redis.call('srem', KEYS[2], lower) == 0 then
  return 0
end
for _, v in ipairs(redis.call('lrange', KEYS[1], 0, -1)) do
  if string.lower(v) == lower then
    redis.call('lrem', KEYS[1], 0, v)
  end
end
return 1
`)

// RedisStore shares the community list between processes.
type RedisStore struct {
	client  goredis.UniversalClient
	listKey string
	setKey  string
}

func NewRedisStore(client goredis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "reddit-top"
	}
	return &RedisStore{
		client:  client,
		listKey: fmt.Sprintf("{%s}:communities", prefix),
		setKey:  fmt.Sprintf("{%s}:communities:set", prefix),
	}
}

// DialRedis opens a client for a redis:// URL.
func DialRedis(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	names, err := s.client.LRange(ctx, s.listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load communities: %w", err)
	}
	return names, nil
}

func (s *RedisStore) Append(ctx context.Context, name string) (bool, error) {
	n, err := appendScript.Run(ctx, s.client, []string{s.listKey, s.setKey}, name).Int64()
	if err != nil {
		return false, fmt.Errorf("append %s: %w", name, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Remove(ctx context.Context, name string) (bool, error) {
	n, err := removeScript.Run(ctx, s.client, []string{s.listKey, s.setKey}, name).Int64()
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", name, err)
	}
	return n == 1, nil
}
