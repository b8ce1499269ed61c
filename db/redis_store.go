package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"gym-agent-server-go/models"
)

const (
	defaultKeyPrefix = "gym"
	collectionsKey   = "collections" // Set: names of every collection ever written
)

// RedisStore keeps each collection as one JSON string under <prefix>:<collection>.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix falls back to "gym".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		Client: client,
		Prefix: prefix,
	}
}

// Helper to generate a collection key
func (s *RedisStore) collectionKey(collection string) string {
	return s.Prefix + ":" + collection
}

func (s *RedisStore) indexKey() string {
	return s.Prefix + ":" + collectionsKey
}

// Load reads a collection. redis.Nil, connection errors and bad JSON all
// read as an empty collection.
func (s *RedisStore) Load(ctx context.Context, collection string) []models.Record {
	key := s.collectionKey(collection)
	data, err := s.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("Error reading collection %s from Redis, treating as empty: %v", collection, err)
		}
		return []models.Record{}
	}
	return decodeRecords(data, key)
}

// Replace overwrites the collection and records its name in the index set.
func (s *RedisStore) Replace(ctx context.Context, collection string, records []models.Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", collection, err)
	}

	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, s.collectionKey(collection), data, 0)
	pipe.SAdd(ctx, s.indexKey(), collection)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Error writing collection %s: %v", collection, err)
		return fmt.Errorf("failed to write collection %s to Redis: %w", collection, err)
	}
	return nil
}

// Collections lists the collections written so far.
func (s *RedisStore) Collections(ctx context.Context) ([]string, error) {
	names, err := s.Client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list collections from Redis: %w", err)
	}
	return names, nil
}

// RedisOptions configures InitializeRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// InitializeRedisClient creates a Redis client and pings it.
func InitializeRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", opts.Addr, err)
	}

	log.Printf("Successfully connected to Redis %s (DB %d)", opts.Addr, opts.DB)
	return rdb, nil
}
