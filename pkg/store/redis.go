package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/persist"
)

// Redis is a redis-backed store. Each board/breakpoint lives under one key
// as a JSON document; writes use WATCH/MULTI so two instances saving the
// same board race cleanly, the loser getting ErrStaleWrite instead of
// silently clobbering the winner.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // defaults to "blockboard:"
}

// NewRedis creates a redis store and verifies connectivity.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "blockboard:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, cfg.Addr, err)
	}
	return &Redis{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// redisDoc is the JSON document stored per board/breakpoint.
type redisDoc struct {
	Version uint64           `json:"version"`
	Blocks  []geometry.Block `json:"blocks"`
}

func (r *Redis) key(boardID, breakpoint string) string {
	return r.keyPrefix + "layout:" + boardID + ":" + breakpoint
}

// SaveGeometry applies the batch inside a WATCH transaction.
func (r *Redis) SaveGeometry(ctx context.Context, boardID, breakpoint string, batch persist.Batch) error {
	key := r.key(boardID, breakpoint)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var doc redisDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}

		doc.Blocks = applyBatch(doc.Blocks, batch)
		doc.Version++
		payload, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrStaleWrite
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// LoadBlocks reads the stored block list.
func (r *Redis) LoadBlocks(ctx context.Context, boardID, breakpoint string) ([]geometry.Block, error) {
	raw, err := r.client.Get(ctx, r.key(boardID, breakpoint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var doc redisDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return doc.Blocks, nil
}

// ReplaceBlocks overwrites the stored block list, bumping the version.
func (r *Redis) ReplaceBlocks(ctx context.Context, boardID, breakpoint string, blocks []geometry.Block) error {
	key := r.key(boardID, breakpoint)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var doc redisDoc
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// First write for this board/breakpoint.
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}

		doc.Blocks = blocks
		doc.Version++
		payload, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrStaleWrite
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// Close releases the redis client.
func (r *Redis) Close(ctx context.Context) error {
	return r.client.Close()
}

// Ensure Redis implements Store.
var _ Store = (*Redis)(nil)
