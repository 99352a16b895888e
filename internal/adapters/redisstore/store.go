// Package redisstore keeps position snapshots in Redis so that a restarted
// bot on another host can recover the active position.
package redisstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds connection parameters for the Redis client.
type Config struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	TLSEnabled  bool
	DialTimeout time.Duration
}

// Store implements ports.PositionStore. Each snapshot is a JSON string at
// "<prefix>position:<id>"; the ids of active snapshots are kept in the set
// "<prefix>positions:active".
type Store struct {
	rdb    *redis.Client
	prefix string
	logger ports.Logger
}

// New creates the client and pings it.
func New(ctx context.Context, cfg Config, logger ports.Logger) (*Store, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  2,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis: ping %s: %v", ports.ErrConnectionFailed, cfg.Addr, err)
	}
	logger.Info(ctx, "Redis position store ready", map[string]interface{}{"addr": cfg.Addr})
	return NewFromClient(rdb, cfg.KeyPrefix, logger), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb *redis.Client, prefix string, logger ports.Logger) *Store {
	if prefix == "" {
		prefix = "optionsbot:"
	}
	return &Store{rdb: rdb, prefix: prefix, logger: logger}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) positionKey(id string) string { return s.prefix + "position:" + id }
func (s *Store) activeKey() string            { return s.prefix + "positions:active" }

// Save writes the snapshot. Terminal snapshots are removed from the active set.
func (s *Store) Save(ctx context.Context, pos *domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("redis: encode position %s: %w", pos.ID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.positionKey(pos.ID), data, 0)
		if pos.Status.IsActive() {
			pipe.SAdd(ctx, s.activeKey(), pos.ID)
		} else {
			pipe.SRem(ctx, s.activeKey(), pos.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis: save position %s: %v", ports.ErrQueryFailed, pos.ID, err)
	}
	return nil
}

// LoadActive returns active snapshots, newest entry first. Ids whose
// snapshot key vanished are pruned from the active set.
func (s *Store) LoadActive(ctx context.Context) ([]*domain.Position, error) {
	ids, err := s.rdb.SMembers(ctx, s.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis: list active positions: %v", ports.ErrQueryFailed, err)
	}
	if len(ids) == 0 {
		return []*domain.Position{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.positionKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: redis: load positions: %v", ports.ErrQueryFailed, err)
	}

	positions := make([]*domain.Position, 0, len(vals))
	var stale []interface{}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		pos := &domain.Position{}
		if err := json.Unmarshal([]byte(raw), pos); err != nil {
			return nil, fmt.Errorf("redis: decode position %s: %w", ids[i], err)
		}
		if pos.Status.IsActive() {
			positions = append(positions, pos)
		}
	}
	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, s.activeKey(), stale...).Err(); err != nil {
			s.logger.Warn(ctx, "Failed to prune stale position ids", map[string]interface{}{"error": err.Error()})
		}
	}
	sortNewestFirst(positions)
	return positions, nil
}

// Delete removes the snapshot and its active-set membership.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.positionKey(id))
		pipe.SRem(ctx, s.activeKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis: delete position %s: %v", ports.ErrQueryFailed, id, err)
	}
	return nil
}

func sortNewestFirst(positions []*domain.Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].EntryTime.After(positions[j].EntryTime)
	})
}
