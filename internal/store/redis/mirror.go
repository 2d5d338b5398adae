// Package redis mirrors the latest market snapshot into Redis so other
// services can read current prices without touching the bot's SQLite
// history. The mirror is optional: the bot runs fine without it.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"alertbot-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Keys expire if the bot stops refreshing, so stale prices never linger.
const defaultLatestTTL = 30 * time.Minute

// MirrorConfig configures the Redis mirror.
type MirrorConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Mirror writes latest token prices to Redis.
type Mirror struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (m *Mirror) Client() *goredis.Client { return m.client }

// New creates a Mirror and pings the server.
func New(cfg MirrorConfig) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Mirror{client: client}, nil
}

// Write mirrors the snapshot in a single pipeline: one price key and
// one full-info key per symbol, both with a staleness TTL. Errors are
// logged, never propagated; the mirror is best-effort.
func (m *Mirror) Write(ctx context.Context, tokens model.TokenMap) {
	if len(tokens) == 0 {
		return
	}

	pipe := m.client.Pipeline()
	for symbol, info := range tokens {
		data, err := json.Marshal(info)
		if err != nil {
			log.Printf("[redis] marshal %s: %v", symbol, err)
			continue
		}
		pipe.Set(ctx, priceKey(symbol), info.Price, defaultLatestTTL)
		pipe.Set(ctx, tokenKey(symbol), data, defaultLatestTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] mirror pipeline error (%d tokens): %v", len(tokens), err)
	}
}

func priceKey(symbol string) string { return "latest:price:" + symbol }

func tokenKey(symbol string) string { return "latest:token:" + symbol }

// Close closes the Redis client.
func (m *Mirror) Close() error {
	return m.client.Close()
}
