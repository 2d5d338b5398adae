// Package hyperliquid fetches spot market data from the Hyperliquid
// info endpoint. One request returns the spot metadata (token and pair
// universe) together with per-pair market state; the client joins the
// two into a symbol → TokenInfo mapping.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultInfoURL = "https://api.hyperliquid.xyz/info"

// TokenInfo mirrors internal/model.TokenInfo field-for-field; the
// snapshot layer converts between them so this package stays free of
// internal imports.
type TokenInfo struct {
	Name        string
	FullName    string
	Price       float64
	Price24hAgo float64
	PairNumber  uint16
	MarketCap   uint64
}

// Config configures the client.
type Config struct {
	InfoURL string        // default: https://api.hyperliquid.xyz/info
	Timeout time.Duration // default: 10s
}

// Client is a Hyperliquid info-endpoint client.
type Client struct {
	infoURL string
	client  *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.InfoURL == "" {
		cfg.InfoURL = defaultInfoURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		infoURL: cfg.InfoURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Wire types for the spotMetaAndAssetCtxs response, which is a
// two-element array: [meta, assetCtxs].

type responseMeta struct {
	Universe []universeItem `json:"universe"`
	Tokens   []metaToken    `json:"tokens"`
}

type metaToken struct {
	Name     string  `json:"name"`
	Index    int     `json:"index"`
	FullName *string `json:"fullName"`
}

type universeItem struct {
	Tokens []int  `json:"tokens"`
	Name   string `json:"name"`
	Index  int    `json:"index"`
}

type assetCtx struct {
	Coin              string  `json:"coin"`
	MarkPx            string  `json:"markPx"`
	PrevDayPx         string  `json:"prevDayPx"`
	CirculatingSupply string  `json:"circulatingSupply"`
	MidPx             *string `json:"midPx"`
}

// FetchSpot fetches the current spot snapshot: the symbol → TokenInfo
// mapping and the full uppercase symbol list.
func (c *Client) FetchSpot(ctx context.Context) (map[string]TokenInfo, []string, error) {
	body := []byte(`{"type":"spotMetaAndAssetCtxs"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.infoURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("hyperliquid: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("hyperliquid: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("hyperliquid: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("hyperliquid: read body: %w", err)
	}
	return parseSpotResponse(raw)
}

// parseSpotResponse joins the token metadata with the per-pair market
// state. Pairs whose token index is unknown are skipped with a log
// line rather than failing the whole snapshot.
func parseSpotResponse(raw []byte) (map[string]TokenInfo, []string, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 2 {
		return nil, nil, fmt.Errorf("hyperliquid: response is not a [meta, ctxs] pair")
	}

	var meta responseMeta
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return nil, nil, fmt.Errorf("hyperliquid: decode meta: %w", err)
	}
	var ctxs []assetCtx
	if err := json.Unmarshal(parts[1], &ctxs); err != nil {
		return nil, nil, fmt.Errorf("hyperliquid: decode asset ctxs: %w", err)
	}

	symbols := make([]string, 0, len(meta.Tokens))
	byIndex := make(map[int]metaToken, len(meta.Tokens))
	for _, tok := range meta.Tokens {
		symbols = append(symbols, strings.ToUpper(tok.Name))
		byIndex[tok.Index] = tok
	}

	pairByCoin := make(map[string]universeItem, len(meta.Universe))
	for _, pair := range meta.Universe {
		pairByCoin[pair.Name] = pair
	}

	tokens := make(map[string]TokenInfo, len(ctxs))
	for _, ctx := range ctxs {
		pair, ok := pairByCoin[ctx.Coin]
		if !ok {
			log.Printf("[hyperliquid] no pair for coin %q", ctx.Coin)
			continue
		}

		// The pair references the base token by its non-zero index
		// (index 0 is the USDC quote leg).
		tokenIdx := -1
		for _, idx := range pair.Tokens {
			if idx != 0 {
				tokenIdx = idx
				break
			}
		}
		tok, ok := byIndex[tokenIdx]
		if !ok {
			log.Printf("[hyperliquid] unknown token index %d for coin %q", tokenIdx, ctx.Coin)
			continue
		}

		price, err := strconv.ParseFloat(ctx.MarkPx, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("hyperliquid: mark price %q: %w", ctx.MarkPx, err)
		}
		prevDay, err := strconv.ParseFloat(ctx.PrevDayPx, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("hyperliquid: prev day price %q: %w", ctx.PrevDayPx, err)
		}
		supply, err := strconv.ParseFloat(ctx.CirculatingSupply, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("hyperliquid: circulating supply %q: %w", ctx.CirculatingSupply, err)
		}

		info := TokenInfo{
			Name:        tok.Name,
			Price:       price,
			Price24hAgo: prevDay,
			PairNumber:  pairNumber(ctx.Coin),
			MarketCap:   uint64(math.Round(price * supply)),
		}
		if tok.FullName != nil {
			info.FullName = *tok.FullName
		}
		tokens[strings.ToUpper(tok.Name)] = info
	}

	return tokens, symbols, nil
}

// pairNumber maps a spot coin identifier ("@N", or "PURR/USDC" for the
// first listed pair) to its referral pair number, 10000 + N. Unknown
// formats yield 0.
func pairNumber(coin string) uint16 {
	if coin == "PURR/USDC" {
		return 10000
	}
	if len(coin) < 2 || coin[0] != '@' {
		return 0
	}
	n, err := strconv.ParseUint(coin[1:], 10, 16)
	if err != nil {
		log.Printf("[hyperliquid] unparseable pair number in coin %q", coin)
		return 0
	}
	return 10000 + uint16(n)
}
