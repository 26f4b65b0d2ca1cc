package db

import (
	"context"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// redisPingTimeout bounds the startup ping so an unreachable Redis fails
// fast instead of holding up a session.
const redisPingTimeout = 3 * time.Second

// NewRedisClient parses redisURL (redis:// or rediss://), connects and
// verifies the connection with a ping.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrapf(err, "redis: parse url %q", redactURL(redisURL))
	}

	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "redis: ping")
	}

	return client, nil
}

// redactURL masks the password before a url reaches an error message.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
