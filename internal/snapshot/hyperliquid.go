package snapshot

import (
	"context"
	"time"

	"alertbot-systemv1/internal/model"
	"alertbot-systemv1/pkg/hyperliquid"
)

// HyperliquidFetcher adapts the Hyperliquid client to the Fetcher
// interface, converting its wire types to the domain TokenMap.
type HyperliquidFetcher struct {
	client *hyperliquid.Client

	// OnFetch receives the duration of each fetch. Used for metrics.
	OnFetch func(d time.Duration)
}

// NewHyperliquidFetcher wraps a Hyperliquid client.
func NewHyperliquidFetcher(client *hyperliquid.Client) *HyperliquidFetcher {
	return &HyperliquidFetcher{client: client}
}

func (f *HyperliquidFetcher) FetchMarketSnapshot(ctx context.Context) (model.TokenMap, []string, error) {
	start := time.Now()
	raw, symbols, err := f.client.FetchSpot(ctx)
	if f.OnFetch != nil {
		f.OnFetch(time.Since(start))
	}
	if err != nil {
		return nil, nil, err
	}

	tokens := make(model.TokenMap, len(raw))
	for symbol, t := range raw {
		tokens[symbol] = model.TokenInfo{
			Name:        t.Name,
			FullName:    t.FullName,
			Price:       t.Price,
			Price24hAgo: t.Price24hAgo,
			PairNumber:  t.PairNumber,
			MarketCap:   t.MarketCap,
		}
	}
	return tokens, symbols, nil
}
