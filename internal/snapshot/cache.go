// Package snapshot holds the process-wide latest market snapshot.
// Exactly one snapshot is current at a time; Refresh replaces it
// wholesale under the lock, and readers get independent copies so they
// can never observe a half-written map.
package snapshot

import (
	"context"
	"log"
	"sync"

	"alertbot-systemv1/internal/model"
)

// Fetcher produces a fresh market snapshot: the symbol → TokenInfo
// mapping plus the ordered list of all known symbols.
type Fetcher interface {
	FetchMarketSnapshot(ctx context.Context) (model.TokenMap, []string, error)
}

// Cache is the in-memory latest-snapshot holder.
type Cache struct {
	mu      sync.Mutex
	fetcher Fetcher
	tokens  model.TokenMap
	symbols []string
}

// New creates an empty cache backed by the given fetcher.
func New(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		tokens:  model.TokenMap{},
	}
}

// Refresh fetches a new snapshot and swaps it in atomically. On fetch
// failure the previous snapshot stays intact (stale-but-available beats
// empty); retry policy belongs to the caller.
func (c *Cache) Refresh(ctx context.Context) error {
	tokens, symbols, err := c.fetcher.FetchMarketSnapshot(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tokens = tokens
	c.symbols = symbols
	c.mu.Unlock()

	log.Printf("[snapshot] refreshed: %d pairs, %d symbols", len(tokens), len(symbols))
	return nil
}

// Current returns a copy of the latest snapshot, empty if never
// refreshed.
func (c *Cache) Current() model.TokenMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(model.TokenMap, len(c.tokens))
	for k, v := range c.tokens {
		out[k] = v
	}
	return out
}

// Symbols returns a copy of the known symbol list.
func (c *Cache) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// Has reports whether symbol is in the known symbol list.
func (c *Cache) Has(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
