// Package pump scans the full market snapshot for large 24-hour upward
// moves and broadcasts them to every pump-subscribed chat. A per-symbol
// memory suppresses repeat alerts for a cool-down window unless the
// price has moved further by a second, larger threshold.
package pump

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"alertbot-systemv1/internal/model"
	"alertbot-systemv1/pkg/telegram"
)

// Detection thresholds. A symbol qualifies when its truncated 24h
// change and market cap both reach their minimum (inclusive).
const (
	SpecialPercentage     = 10.0   // minimum 24h rise, percent
	MinMarketCap          = 200000 // minimum market cap, USD
	OverSpecialPercentage = 5.0    // further rise that re-arms a suppressed symbol
	cooldown              = 24 * time.Hour
)

const (
	pumpHeader      = "__*📈 WAGMI Pump Alert:*__\n\n"
	pumpErrorHeader = "PUMP_ERROR\n"
)

// pumpDivider separates symbol lines, pre-escaped for MarkdownV2.
var pumpDivider = strings.Repeat("\\-", 24)

// Broadcaster fans one message out to many chats.
type Broadcaster interface {
	Broadcast(ctx context.Context, chatIDs []int64, text string) error
}

// Escalator reports operational errors to the moderation channel.
type Escalator interface {
	Escalate(ctx context.Context, msg string)
}

// pumpedToken remembers one detection for the cool-down window.
type pumpedToken struct {
	when  time.Time
	price float64
}

// Detector holds the pump memory and collaborators.
type Detector struct {
	store       model.DemandStore
	broadcaster Broadcaster
	escalate    Escalator
	memory      map[string]pumpedToken

	// Now is the clock, swappable in tests.
	Now func() time.Time

	// OnAlert is called once per broadcast sent. Used for metrics.
	OnAlert func()
}

// New creates a detector with an empty pump memory.
func New(store model.DemandStore, broadcaster Broadcaster, escalate Escalator) *Detector {
	return &Detector{
		store:       store,
		broadcaster: broadcaster,
		escalate:    escalate,
		memory:      map[string]pumpedToken{},
		Now:         time.Now,
	}
}

// Run scans the snapshot and broadcasts a combined alert when at least
// one symbol qualifies. No broadcast is sent for an empty result.
func (d *Detector) Run(ctx context.Context, current model.TokenMap) {
	msg := d.buildAlert(current)
	if msg == "" {
		return
	}

	chatIDs, err := d.store.SpecialChatIDs()
	if err != nil {
		d.escalate.Escalate(ctx, fmt.Sprintf("%serror loading special chat ids: %v", pumpErrorHeader, err))
		return
	}
	if err := d.broadcaster.Broadcast(ctx, chatIDs, msg); err != nil {
		d.escalate.Escalate(ctx, fmt.Sprintf("%sbroadcast: %v", pumpErrorHeader, err))
		return
	}
	log.Printf("[pump] alert broadcast to %d chats", len(chatIDs))
	if d.OnAlert != nil {
		d.OnAlert()
	}
}

// buildAlert returns the combined alert message, one line per
// qualifying symbol, or "" when none qualifies. Qualifying symbols have
// their memory entry refreshed to {now, current price}.
func (d *Detector) buildAlert(current model.TokenMap) string {
	now := d.Now()
	msg := pumpHeader

	for symbol, info := range current {
		pump := CheckPump(info)
		if remembered, ok := d.recall(symbol, now); ok {
			if !OverPump(info.Price, remembered.price) {
				pump = 0
			}
		}
		if pump == 0 {
			continue
		}

		d.memory[symbol] = pumpedToken{when: now, price: info.Price}
		pct := telegram.EscapeMarkdown(fmt.Sprintf("%.2f", pump))
		price := telegram.EscapeMarkdown(strconv.FormatFloat(info.Price, 'f', -1, 64))
		msg += fmt.Sprintf("__[%s](%s%d)__: Price has risen by %s%% in the last 24h: %s$\n%s\n",
			symbol, model.ReferralLink, info.PairNumber, pct, price, pumpDivider)
	}

	if msg == pumpHeader {
		return ""
	}
	return msg
}

// recall returns the live memory entry for symbol, expiring entries
// older than the cool-down window.
func (d *Detector) recall(symbol string, now time.Time) (pumpedToken, bool) {
	entry, ok := d.memory[symbol]
	if !ok {
		return pumpedToken{}, false
	}
	if now.Sub(entry.when) >= cooldown {
		delete(d.memory, symbol)
		return pumpedToken{}, false
	}
	return entry, true
}

// DiffInPercent computes the percent change from previous to now,
// truncated to two decimals (floor(change*10000)/100). A previous
// price of 0 or NaN yields 0, never a divide error.
func DiffInPercent(now, previous float64) float64 {
	if previous == 0 || math.IsNaN(previous) {
		return 0
	}
	raw := (now - previous) / previous * 1e4
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	return float64(int64(raw)) / 100
}

// CheckPump returns the symbol's truncated 24h change when it clears
// both detection thresholds, 0 otherwise.
func CheckPump(t model.TokenInfo) float64 {
	ret := DiffInPercent(t.Price, t.Price24hAgo)
	if ret < SpecialPercentage || t.MarketCap < MinMarketCap {
		return 0
	}
	return ret
}

// OverPump reports whether the price has risen past the over-pump
// threshold since the remembered detection price.
func OverPump(now, then float64) bool {
	return (now-then)/then*100 > OverSpecialPercentage
}
