package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LastPositionTTL bounds how long an agent's latest message stays readable
// after the agent stops reporting.
const LastPositionTTL = 5 * time.Minute

// redisClient is the part of *redis.Client the sink needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Redis publishes every message on the "<subject>.positions" channel and
// keeps the latest message per agent under "<subject>:last:<agentID>".
type Redis struct {
	client  redisClient
	subject string
}

// DialRedis connects to addr ("host:port", localhost:6379 when empty) and
// pings it.
func DialRedis(ctx context.Context, addr, subject string) (*Redis, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newRedis(client, subject), nil
}

func newRedis(client redisClient, subject string) *Redis {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Redis{client: client, subject: subject}
}

func (r *Redis) Name() string { return KindRedis }

// Channel is the pub/sub channel every message is published on.
func (r *Redis) Channel() string { return r.subject + ".positions" }

// LastKey is the key holding agentID's most recent message.
func (r *Redis) LastKey(agentID string) string { return r.subject + ":last:" + agentID }

func (r *Redis) Send(ctx context.Context, agentID string, payload []byte) error {
	if err := r.client.Publish(ctx, r.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	if err := r.client.Set(ctx, r.LastKey(agentID), payload, LastPositionTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
