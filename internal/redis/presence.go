package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:conns:"

// PresenceStore counts open relay sockets per user across instances. The
// counter expires after ttl so a crashed instance cannot pin a user online.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

// SetOnline records one more socket for userID.
func (p *PresenceStore) SetOnline(ctx context.Context, userID string) error {
	key := presenceKeyPrefix + userID
	pipe := p.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline drops one socket for userID and clears the key at zero.
func (p *PresenceStore) SetOffline(ctx context.Context, userID string) error {
	key := presenceKeyPrefix + userID
	n, err := p.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return p.client.Del(ctx, key).Err()
	}
	return nil
}

func (p *PresenceStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.Get(ctx, presenceKeyPrefix+userID).Int64()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
