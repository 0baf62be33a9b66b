package repository

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MorphGate/morphgate/internal/config"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

// RedisVolumeRepo keeps matched/pooled volume counters per market. The
// counters are wei-scale integers that outgrow int64, so they are held
// as decimal strings and updated under an optimistic transaction.
type RedisVolumeRepo struct {
	client *RedisClient
	prefix string
}

func NewRedisVolumeRepo(client *RedisClient) *RedisVolumeRepo {
	return &RedisVolumeRepo{
		client: client,
		prefix: "efficiency",
	}
}

func (r *RedisVolumeRepo) GetVolume(ctx context.Context, marketID string) (*big.Int, *big.Int, error) {
	key := r.makeKey(marketID)
	vals, err := r.client.Client.HMGet(ctx, key, "matched", "pooled").Result()
	if err != nil {
		return nil, nil, err
	}
	return parseVolumeField(vals[0]), parseVolumeField(vals[1]), nil
}

func (r *RedisVolumeRepo) AddVolume(ctx context.Context, marketID string, matched, pooled *big.Int) error {
	key := r.makeKey(marketID)
	// read-modify-write under WATCH; retried on concurrent update
	for attempt := 0; attempt < 5; attempt++ {
		err := r.client.Client.Watch(ctx, func(tx *redis.Tx) error {
			vals, err := tx.HMGet(ctx, key, "matched", "pooled").Result()
			if err != nil && err != redis.Nil {
				return err
			}
			newMatched := new(big.Int).Add(parseVolumeField(vals[0]), matched)
			newPooled := new(big.Int).Add(parseVolumeField(vals[1]), pooled)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "matched", newMatched.String(), "pooled", newPooled.String())
				return nil
			})
			return err
		}, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return redis.TxFailedErr
}

func (r *RedisVolumeRepo) makeKey(marketID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, marketID)
}

func parseVolumeField(val interface{}) *big.Int {
	s, ok := val.(string)
	if !ok {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}
