package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/cinema-seat-booking/internal/idempotency"
)

const keyPrefix = "idemp:"

// Idempotency stores replayable responses in Redis.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type idempResponse struct {
	Status int    `json:"status"`
	Result []byte `json:"result"`
}

func (i *Idempotency) Get(ctx context.Context, key string) (*idempotency.Response, error) {
	val, err := i.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	var stored idempResponse
	if err := json.Unmarshal(val, &stored); err != nil {
		return nil, errors.Wrapf(err, "decoding idempotency record %s", key)
	}
	return &idempotency.Response{Status: stored.Status, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp idempotency.Response, ttl time.Duration) error {
	data, err := json.Marshal(idempResponse{Status: resp.Status, Result: resp.Result})
	if err != nil {
		return err
	}
	return errors.Wrap(i.client.Set(ctx, keyPrefix+key, data, ttl).Err(), "redis set")
}

// Ping is used at startup to fail fast on a bad REDIS_ADDR.
func (i *Idempotency) Ping(ctx context.Context) error {
	return i.client.Ping(ctx).Err()
}
