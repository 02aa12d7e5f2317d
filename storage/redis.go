package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/eddielth/co2-sensor/config"
	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/sensor"
)

const redisTimeout = 5 * time.Second

// RedisStorage appends measurements to a Redis stream
type RedisStorage struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStorage connects to Redis and checks the connection
func NewRedisStorage(cfg config.RedisStorageConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis %s: %w", cfg.Addr, err)
	}

	logger.Info("connected to Redis %s, appending to stream %s", cfg.Addr, cfg.Stream)
	return newRedisStorage(client, cfg), nil
}

func newRedisStorage(client *redis.Client, cfg config.RedisStorageConfig) *RedisStorage {
	stream := cfg.Stream
	if stream == "" {
		stream = "co2-sensor:measurements"
	}
	return &RedisStorage{client: client, stream: stream, maxLen: cfg.MaxLen}
}

// Store adds m as one stream entry, one entry field per measurement field
func (s *RedisStorage) Store(m sensor.Measurement) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	err := s.client.XAdd(ctx, s.addArgs(m)).Err()
	if err != nil {
		return fmt.Errorf("failed to append to Redis stream %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisStorage) addArgs(m sensor.Measurement) *redis.XAddArgs {
	values := make([]string, 0, 2*m.Len())
	for _, f := range m.Fields() {
		values = append(values, f.Key, f.Value)
	}
	return &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: values,
	}
}

// Close closes the Redis client
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
