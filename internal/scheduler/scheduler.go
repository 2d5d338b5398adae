// Package scheduler drives the periodic market tick: fetch a fresh
// snapshot, run the pump scan, evaluate due alert demands, and persist
// the snapshot tagged with the intervals it closed.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"alertbot-systemv1/internal/logger"
	"alertbot-systemv1/internal/model"
	"alertbot-systemv1/internal/schedule"
)

// historyRetryDelay separates the two snapshot insert attempts.
const historyRetryDelay = time.Second

// Refresher fetches the latest market state and exposes it.
type Refresher interface {
	Refresh(ctx context.Context) error
	Current() model.TokenMap
}

// PumpRunner scans a snapshot for pump alerts.
type PumpRunner interface {
	Run(ctx context.Context, current model.TokenMap)
}

// DemandRunner evaluates alert demands for the due intervals.
type DemandRunner interface {
	Run(ctx context.Context, due []string, current model.TokenMap)
}

// Escalator reports operational errors to the moderation channel.
type Escalator interface {
	Escalate(ctx context.Context, msg string)
}

// Scheduler owns the cron runner and the tick pipeline.
type Scheduler struct {
	snapshot Refresher
	pump     PumpRunner
	demands  DemandRunner
	history  model.HistoryStore
	escalate Escalator

	runner *cron.Cron

	// nowFunc and sleep are swappable in tests.
	nowFunc func() time.Time
	sleep   func(time.Duration)

	// Metrics hooks, all optional.
	OnTick         func()
	OnTickDone     func(d time.Duration)
	OnFetchFailure func()
	OnHistoryRetry func()

	// OnSnapshot receives each fresh snapshot, e.g. for the Redis
	// price mirror. Best-effort; runs before evaluation.
	OnSnapshot func(ctx context.Context, current model.TokenMap)
}

// New wires a scheduler; Start must be called to begin ticking.
func New(snapshot Refresher, pump PumpRunner, demands DemandRunner, history model.HistoryStore, escalate Escalator) *Scheduler {
	return &Scheduler{
		snapshot: snapshot,
		pump:     pump,
		demands:  demands,
		history:  history,
		escalate: escalate,
		nowFunc:  time.Now,
		sleep:    time.Sleep,
	}
}

// Start registers the tick on the finest interval's cron expression
// and launches the runner. Ticks run until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runner = cron.New(cron.WithSeconds())
	_, err := s.runner.AddFunc(schedule.TriggerExpr(), func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register tick: %w", err)
	}
	s.runner.Start()
	log.Printf("[scheduler] started, trigger %q", schedule.TriggerExpr())
	return nil
}

// Stop halts the cron runner and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.runner == nil {
		return
	}
	<-s.runner.Stop().Done()
	log.Printf("[scheduler] stopped")
}

// Tick runs one full cycle. A failed market fetch aborts the cycle:
// every downstream step needs current prices, and the previous
// snapshot stays valid for the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.nowFunc()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("tick", now))
	if s.OnTick != nil {
		s.OnTick()
	}
	if s.OnTickDone != nil {
		defer func(start time.Time) { s.OnTickDone(time.Since(start)) }(time.Now())
	}

	if err := s.snapshot.Refresh(ctx); err != nil {
		if s.OnFetchFailure != nil {
			s.OnFetchFailure()
		}
		s.escalate.Escalate(ctx, fmt.Sprintf("market fetch failed: %v", err))
		return
	}
	current := s.snapshot.Current()
	if s.OnSnapshot != nil {
		s.OnSnapshot(ctx, current)
	}

	s.pump.Run(ctx, current)

	due := schedule.Due(now)
	s.demands.Run(ctx, due, current)

	s.appendHistory(ctx, now, due, current)
}

// appendHistory persists the snapshot tagged with the due intervals,
// retrying once after a short delay before escalating.
func (s *Scheduler) appendHistory(ctx context.Context, now time.Time, due []string, current model.TokenMap) {
	snap := model.HistorySnapshot{
		TimestampMin: int32(now.Unix() / 60),
		Intervals:    due,
		Tokens:       current,
	}

	err := s.history.Append(snap)
	if err == nil {
		return
	}
	log.Printf("[scheduler] history append failed, retrying: %v", err)
	if s.OnHistoryRetry != nil {
		s.OnHistoryRetry()
	}
	s.sleep(historyRetryDelay)
	if err := s.history.Append(snap); err != nil {
		s.escalate.Escalate(ctx, fmt.Sprintf("history append failed twice: %v", err))
	}
}
