// Package redis implements the session store driver on Redis lists.
package redis

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hrygo/relayhub/internal/profile"
	"github.com/hrygo/relayhub/store"
)

// Driver speaks the list keyspace the surrounding agents share: RPUSH for
// appends, LRANGE for ranged reads, LSET under WATCH for the in-place update
// of the last element.
type Driver struct {
	client *redis.Client
}

// NewDriver creates a Redis driver from the profile.
func NewDriver(p *profile.Profile) *Driver {
	return &Driver{
		client: redis.NewClient(&redis.Options{
			Addr:     p.RedisAddr,
			Password: p.RedisPassword,
			DB:       p.RedisDB,
		}),
	}
}

// NewDriverWithClient wraps an existing client, mainly for tests.
func NewDriverWithClient(client *redis.Client) *Driver {
	return &Driver{client: client}
}

func (d *Driver) Append(ctx context.Context, key string, value string) error {
	if err := d.client.RPush(ctx, key, value).Err(); err != nil {
		return errors.Wrapf(err, "rpush %s", key)
	}
	return nil
}

func (d *Driver) ReadRange(ctx context.Context, key string, start, end int64) ([]string, error) {
	values, err := d.client.LRange(ctx, key, start, end).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "lrange %s", key)
	}
	return values, nil
}

// ReplaceLast overwrites the tail element inside a WATCH transaction so a
// concurrent RPUSH on the same key aborts the replace instead of silently
// landing it on the wrong index. Aborted attempts are retried a bounded
// number of times.
func (d *Driver) ReplaceLast(ctx context.Context, key string, value string) error {
	const maxAttempts = 3

	replace := func(tx *redis.Tx) error {
		length, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return err
		}
		if length == 0 {
			return store.ErrEmptyLog
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LSet(ctx, key, length-1, value)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = d.client.Watch(ctx, replace, key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err == store.ErrEmptyLog {
		return err
	}
	if err != nil {
		return errors.Wrapf(err, "replace last element of %s", key)
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "del %s", key)
	}
	return nil
}

func (d *Driver) Exists(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.Wrapf(err, "exists %s", key)
	}
	return n > 0, nil
}

func (d *Driver) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

func (d *Driver) Close() error {
	return d.client.Close()
}
