package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 6 * time.Hour

type Entry struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// Mirror copies room scores into a Redis sorted set so other processes can
// read a live leaderboard. Rooms themselves never read it back.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Mirror{client: client, ttl: ttl}
}

// Connect dials addr and checks the connection.
func Connect(ctx context.Context, addr, password string) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client, defaultTTL), nil
}

func key(roomCode string) string {
	return fmt.Sprintf("room:%s:lb", roomCode)
}

// Publish replaces the room's scores and refreshes the key's expiry.
func (m *Mirror) Publish(ctx context.Context, roomCode string, scores map[string]int) error {
	if len(scores) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(scores))
	for id, score := range scores {
		members = append(members, redis.Z{Score: float64(score), Member: id})
	}
	k := key(roomCode)
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.ZAdd(ctx, k, members...)
		pipe.Expire(ctx, k, m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publishing leaderboard %s: %w", roomCode, err)
	}
	return nil
}

// Top returns up to limit entries, highest score first.
func (m *Mirror) Top(ctx context.Context, roomCode string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := m.client.ZRevRangeWithScores(ctx, key(roomCode), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading leaderboard %s: %w", roomCode, err)
	}
	entries := make([]Entry, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		entries[i] = Entry{PlayerID: member, Score: int(z.Score)}
	}
	Rank(entries)
	return entries, nil
}

// RankOf returns a player's 1-based position, or 0 when absent.
func (m *Mirror) RankOf(ctx context.Context, roomCode, playerID string) (int, error) {
	rank, err := m.client.ZRevRank(ctx, key(roomCode), playerID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(rank) + 1, nil
}

func (m *Mirror) Forget(ctx context.Context, roomCode string) error {
	return m.client.Del(ctx, key(roomCode)).Err()
}

func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *Mirror) Close() error {
	return m.client.Close()
}

// Rank assigns ranks to entries already sorted by score descending. Equal
// scores share a rank.
func Rank(entries []Entry) {
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
}
