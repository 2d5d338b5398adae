package model

// TokenInfo holds one symbol's market data for a single fetch cycle.
// Values are immutable once built; a new fetch produces new TokenInfos.
type TokenInfo struct {
	Name        string  `json:"name"`
	FullName    string  `json:"full_name,omitempty"`
	Price       float64 `json:"price"`
	Price24hAgo float64 `json:"price_prev_24h"`
	PairNumber  uint16  `json:"pair_number,omitempty"` // 0 = unknown pair
	MarketCap   uint64  `json:"market_cap"`
}

// TokenMap maps an uppercase symbol to its latest TokenInfo.
type TokenMap map[string]TokenInfo

// ReferralLink prefixes pair links in outbound alert messages; the
// pair number is appended to form the deep link.
const ReferralLink = "https://t.me/HypurrFunBot?start=ref_2262836c-trade_"
