package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"rallytiming/internal/classify"
)

// Redis stores each event as one hash, one field per view, so invalidation is
// a single DEL shared by every API replica.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func NewRedisClient(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) Get(ctx context.Context, key Key) (classify.Classification, bool, error) {
	var c classify.Classification
	data, err := r.rdb.HGet(ctx, r.hashName(key.EventID), key.View).Bytes()
	if errors.Is(err, redis.Nil) {
		return c, false, nil
	}
	if err != nil {
		return c, false, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, false, err
	}
	return c, true, nil
}

func (r *Redis) Put(ctx context.Context, key Key, c classify.Classification) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	name := r.hashName(key.EventID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, name, key.View, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, name, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Invalidate(ctx context.Context, eventID int64) error {
	return r.rdb.Del(ctx, r.hashName(eventID)).Err()
}

func (r *Redis) hashName(eventID int64) string {
	return "classification:" + strconv.FormatInt(eventID, 10)
}
