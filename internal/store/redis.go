// Package store persists battle snapshots in Redis and finished battle records in Postgres.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/magefree/battle-server-go/internal/battle"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func snapshotKey(gameID string) string { return "battle:" + gameID + ":snapshot" }
func checksumKey(gameID string) string { return "battle:" + gameID + ":checksum" }

const gamesKey = "battle:games"

// SnapshotStore keeps the latest snapshot of every game in Redis.
type SnapshotStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSnapshotStore connects to the Redis at redisURL. A zero ttl keeps snapshots forever.
func NewSnapshotStore(ctx context.Context, redisURL string, ttl time.Duration, logger *zap.Logger) (*SnapshotStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewSnapshotStoreFromClient(rdb, ttl, logger), nil
}

// NewSnapshotStoreFromClient wraps an existing client, e.g. in tests.
func NewSnapshotStoreFromClient(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{rdb: rdb, ttl: ttl, logger: logger}
}

// Close closes the Redis connection.
func (s *SnapshotStore) Close() error {
	return s.rdb.Close()
}

// Save replaces the stored snapshot of the snapshot's game.
func (s *SnapshotStore) Save(ctx context.Context, snap *battle.Snapshot) (*battle.SnapshotChecksum, error) {
	if snap.GameID == "" {
		return nil, errors.New("snapshot has no game id")
	}
	var buf bytes.Buffer
	sum, err := battle.SaveSnapshot(&buf, snap)
	if err != nil {
		return nil, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(snap.GameID), buf.Bytes(), s.ttl)
		pipe.Set(ctx, checksumKey(snap.GameID), sum.Hash, s.ttl)
		pipe.SAdd(ctx, gamesKey, snap.GameID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved",
		zap.String("game_id", snap.GameID),
		zap.String("checksum", sum.Hash),
		zap.Int("bytes", buf.Len()),
	)
	return sum, nil
}

// Load returns the stored snapshot of a game, or nil if there is none.
func (s *SnapshotStore) Load(ctx context.Context, gameID string) (*battle.Snapshot, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap, err := battle.UnmarshalSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}
	return snap, nil
}

// Checksum returns the checksum of the stored snapshot, or "" if there is none.
func (s *SnapshotStore) Checksum(ctx context.Context, gameID string) (string, error) {
	sum, err := s.rdb.Get(ctx, checksumKey(gameID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get checksum: %w", err)
	}
	return sum, nil
}

// Delete forgets a game's snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, gameID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, snapshotKey(gameID), checksumKey(gameID))
		pipe.SRem(ctx, gamesKey, gameID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Games lists the games with a stored snapshot. Games whose snapshot expired are pruned.
func (s *SnapshotStore) Games(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, gamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	live := ids[:0]
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, snapshotKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check snapshot: %w", err)
		}
		if n == 0 {
			s.rdb.SRem(ctx, gamesKey, id)
			continue
		}
		live = append(live, id)
	}
	sort.Strings(live)
	return live, nil
}
