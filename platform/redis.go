package platform

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	RDB *redis.Client
)

// InitRedis connects the process-wide Redis client. A connection failure
// is logged but not fatal: the store and publisher run degraded until
// Redis comes back, matching the rest of the relay's availability model.
func InitRedis() {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		logrus.Errorf("invalid REDIS_URL %q: %s", url, err)
		return
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.Warnf("redis ping failed, starting degraded: %s", err)
	}
	RDB = client
}
