package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "portal:credentials:"
	// A write from another replica between WATCH and EXEC forces a retry.
	maxUpdateAttempts = 16
)

// RedisBackend stores one sealed JSON blob per context with a sliding TTL.
type RedisBackend struct {
	client redis.UniversalClient
	ttl    time.Duration
	sealer Sealer
}

type RedisOption func(*RedisBackend)

// WithTTL expires idle contexts after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) {
		b.ttl = ttl
	}
}

func WithRedisSealer(sealer Sealer) RedisOption {
	return func(b *RedisBackend) {
		if sealer != nil {
			b.sealer = sealer
		}
	}
}

func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) (*RedisBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("[NewRedisBackend] client is required")
	}
	b := &RedisBackend{client: client, sealer: PlainSealer{}}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *RedisBackend) key(contextID string) string {
	return redisKeyPrefix + contextID
}

func (b *RedisBackend) Load(ctx context.Context, contextID string) (map[Key]string, error) {
	return b.load(ctx, b.client, contextID)
}

func (b *RedisBackend) load(ctx context.Context, reader redis.StringCmdable, contextID string) (map[Key]string, error) {
	blob, err := reader.Get(ctx, b.key(contextID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return make(map[Key]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("[RedisBackend Load] %w", err)
	}
	values, err := openValues(b.sealer, blob)
	if err != nil {
		return nil, fmt.Errorf("[RedisBackend Load] decode %s: %w", contextID, err)
	}
	return values, nil
}

func (b *RedisBackend) Save(ctx context.Context, contextID string, values map[Key]string) error {
	blob, err := sealValues(b.sealer, values)
	if err != nil {
		return fmt.Errorf("[RedisBackend Save] encode %s: %w", contextID, err)
	}
	if err := b.client.Set(ctx, b.key(contextID), blob, b.ttl).Err(); err != nil {
		return fmt.Errorf("[RedisBackend Save] %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, contextID string) error {
	if err := b.client.Del(ctx, b.key(contextID)).Err(); err != nil {
		return fmt.Errorf("[RedisBackend Delete] %w", err)
	}
	return nil
}

// Update applies mutate to the values of contextID inside a WATCH
// transaction, so writers on other replicas cannot interleave with the
// read-modify-write. mutate may run more than once; its own errors are
// returned unwrapped.
func (b *RedisBackend) Update(ctx context.Context, contextID string, mutate func(values map[Key]string) error) error {
	key := b.key(contextID)
	txf := func(tx *redis.Tx) error {
		values, err := b.load(ctx, tx, contextID)
		if err != nil {
			return err
		}
		if err := mutate(values); err != nil {
			return err
		}
		var blob []byte
		if len(values) > 0 {
			if blob, err = sealValues(b.sealer, values); err != nil {
				return fmt.Errorf("[RedisBackend Update] encode %s: %w", contextID, err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if blob == nil {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, blob, b.ttl)
			return nil
		})
		return err
	}

	for range maxUpdateAttempts {
		err := b.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("[RedisBackend Update] %s: %w", contextID, redis.TxFailedErr)
}
