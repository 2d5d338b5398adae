// Package evaluate satisfies alert demands against the current market
// snapshot. Each scheduler tick hands it the due interval names and the
// fresh snapshot; it loads the matching subscriptions and the last
// persisted snapshot per interval, computes percent changes, and
// notifies subscribers whose condition holds.
package evaluate

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"alertbot-systemv1/internal/model"
	"alertbot-systemv1/pkg/telegram"
)

// MinSignificantChangePercent is the absolute noise floor: changes
// below it never notify, independently of the subscriber's threshold.
// Both conditions must hold for a notification.
const MinSignificantChangePercent = 0.01

const demandErrHeader = "Error satisfying demand for :"

// Notifier sends one fire-and-forget message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, threadID int, text string)
}

// Escalator reports operational errors to the moderation channel.
type Escalator interface {
	Escalate(ctx context.Context, msg string)
}

// Evaluator runs demand satisfaction for one tick at a time.
type Evaluator struct {
	demands  model.DemandStore
	history  model.HistoryStore
	notifier Notifier
	escalate Escalator

	// OnNotify is called once per notification sent, OnEvaluate once
	// per demand examined. Used for metrics.
	OnNotify   func()
	OnEvaluate func()
}

// New wires an evaluator.
func New(demands model.DemandStore, history model.HistoryStore, notifier Notifier, escalate Escalator) *Evaluator {
	return &Evaluator{
		demands:  demands,
		history:  history,
		notifier: notifier,
		escalate: escalate,
	}
}

// Run evaluates every alert demand registered for the due intervals
// against the current snapshot. A failing interval is recorded and its
// siblings continue; recorded failures are escalated once, as a single
// aggregated report, after all intervals have been processed.
func (e *Evaluator) Run(ctx context.Context, due []string, current model.TokenMap) {
	errStack := demandErrHeader
	for _, interval := range due {
		demands, err := e.demands.ListByIntervalAndKind(interval, model.KindAlert)
		if err != nil {
			log.Printf("[evaluate] loading demands for %s: %v", interval, err)
			errStack += fmt.Sprintf("%q: %v; ", interval, err)
			continue
		}
		if err := e.satisfyInterval(ctx, interval, demands, current); err != nil {
			errStack += fmt.Sprintf("%q: %v; ", interval, err)
		}
	}
	if errStack != demandErrHeader {
		e.escalate.Escalate(ctx, errStack)
	}
}

// satisfyInterval evaluates one interval's demands against the last
// snapshot tagged with that interval.
func (e *Evaluator) satisfyInterval(ctx context.Context, interval string, demands []model.Demand, current model.TokenMap) error {
	if len(demands) == 0 {
		log.Printf("[evaluate] no alert demands for %s", interval)
		return nil
	}

	previous, err := e.history.LatestTagged(interval)
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", interval, err)
	}
	if previous == nil {
		// Expected on cold start: nothing tagged yet.
		log.Printf("[evaluate] no historical snapshot for %s yet", interval)
		return nil
	}

	for _, d := range demands {
		if e.OnEvaluate != nil {
			e.OnEvaluate()
		}
		token := strings.ToUpper(d.Token)

		now, ok := current[token]
		if !ok {
			// The pair disappeared from the feed; tell the subscriber
			// rather than failing the batch.
			e.notify(ctx, d.ChatID, d.ThreadID,
				telegram.EscapeMarkdown(fmt.Sprintf("⚠️ Error: no pair for %s", token)))
			continue
		}
		prev, ok := previous.Tokens[token]
		if !ok {
			// Not in the stored snapshot yet; wait for the next one.
			log.Printf("[evaluate] %s missing from %s history, skipping", token, interval)
			continue
		}

		diff := (now.Price - prev.Price) / prev.Price * 100
		if !ShouldNotify(diff, d.Percentage) {
			continue
		}
		e.notify(ctx, d.ChatID, d.ThreadID, formatDiffMessage(now, diff, interval))
	}
	return nil
}

func (e *Evaluator) notify(ctx context.Context, chatID int64, threadID int, text string) {
	e.notifier.Notify(ctx, chatID, threadID, text)
	if e.OnNotify != nil {
		e.OnNotify()
	}
}

// ShouldNotify decides whether a percent change triggers a demand with
// the given threshold. The noise floor applies before the threshold
// check and both must pass; threshold 0 means "any significant change".
func ShouldNotify(diffPercent float64, threshold int16) bool {
	abs := diffPercent
	if abs < 0 {
		abs = -abs
	}
	if abs < MinSignificantChangePercent {
		return false
	}
	return threshold == 0 || abs >= float64(threshold)
}

// formatDiffMessage builds the alert text. A zero diff that reached
// this point is classified as a drop.
func formatDiffMessage(now model.TokenInfo, diff float64, interval string) string {
	movement := "risen"
	if diff <= 0.0 {
		movement = "dropped"
	}
	pct := telegram.EscapeMarkdown(fmt.Sprintf("%.2f", diff))
	price := telegram.EscapeMarkdown(strconv.FormatFloat(now.Price, 'f', -1, 64))
	return fmt.Sprintf("__*📈 WAGMI Alert*__:\n[%s](%s%d) has %s by %s%% in the last %s : %s$",
		now.Name, model.ReferralLink, now.PairNumber, movement, pct, interval, price)
}
