package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"clicker_ledger/internal/domain"

	redis "github.com/redis/go-redis/v9"
)

const DefaultLeaderboardTTL = 10 * time.Second

// Connect opens a Redis client and checks it answers. An empty addr means
// Redis is not configured and yields (nil, nil).
func Connect(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Leaderboard caches leaderboard pages as JSON under lb:<limit>.
type Leaderboard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboard(client *redis.Client, ttl time.Duration) *Leaderboard {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &Leaderboard{client: client, ttl: ttl}
}

func leaderboardKey(limit int) string {
	return "lb:" + strconv.Itoa(limit)
}

func (l *Leaderboard) Get(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool, error) {
	b, err := l.client.Get(ctx, leaderboardKey(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rows []domain.LeaderboardEntry
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, false, fmt.Errorf("decode cached leaderboard: %w", err)
	}
	return rows, true, nil
}

func (l *Leaderboard) Set(ctx context.Context, limit int, rows []domain.LeaderboardEntry) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return l.client.Set(ctx, leaderboardKey(limit), b, l.ttl).Err()
}
