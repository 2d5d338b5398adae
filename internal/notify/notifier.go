// Package notify delivers outbound messages: single-recipient alerts
// (fire-and-forget), rate-limited broadcast fan-out, and operational
// error escalation to the moderator chat.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Broadcast delivery tuning.
const (
	// BroadcastPace is the minimum gap between dispatch submissions.
	BroadcastPace = 50 * time.Millisecond
	// MaxInFlight caps concurrent sends during a broadcast.
	MaxInFlight = 5
)

// Sender delivers one message to one chat. threadID 0 means no topic
// thread.
type Sender interface {
	Send(ctx context.Context, chatID int64, threadID int, text string) error
}

// Notifier fans messages out over a Sender.
type Notifier struct {
	sender  Sender
	limiter *rate.Limiter
	wg      sync.WaitGroup

	// OnSendError is called once per failed single send,
	// OnBroadcastError once per failed send within a broadcast. Used
	// for metrics.
	OnSendError      func()
	OnBroadcastError func()
}

// New creates a Notifier with the default pacing and concurrency cap.
func New(sender Sender) *Notifier {
	return &Notifier{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Every(BroadcastPace), 1),
	}
}

// Notify sends one message to one chat without blocking the caller.
// Failures are logged and counted, never returned: a single slow or
// broken chat must not stall the evaluation tick.
func (n *Notifier) Notify(ctx context.Context, chatID int64, threadID int, text string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.sender.Send(ctx, chatID, threadID, text); err != nil {
			log.Printf("[notify] send to chat %d failed: %v", chatID, err)
			if n.OnSendError != nil {
				n.OnSendError()
			}
		}
	}()
}

// Broadcast sends the same message to every destination, pacing
// submissions and holding at most MaxInFlight sends concurrently. Every
// destination is attempted; the returned error is non-nil iff at least
// one send failed.
func (n *Notifier) Broadcast(ctx context.Context, chatIDs []int64, text string) error {
	sem := make(chan struct{}, MaxInFlight)
	var wg sync.WaitGroup
	var failed atomic.Int64

	for _, chatID := range chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			wg.Wait()
			return fmt.Errorf("broadcast interrupted: %w", err)
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := n.sender.Send(ctx, chatID, 0, text); err != nil {
				log.Printf("[notify] broadcast send to chat %d failed: %v", chatID, err)
				if n.OnBroadcastError != nil {
					n.OnBroadcastError()
				}
				failed.Add(1)
			}
		}(chatID)
	}

	wg.Wait()
	if f := failed.Load(); f > 0 {
		return fmt.Errorf("broadcast: %d of %d sends failed", f, len(chatIDs))
	}
	return nil
}

// Drain blocks until all fire-and-forget sends issued so far have
// completed. Called on shutdown and by tests.
func (n *Notifier) Drain() {
	n.wg.Wait()
}
