package notify

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"alertbot-systemv1/internal/logger"
	"alertbot-systemv1/pkg/telegram"
)

// Escalator reports operational errors to the fixed moderator chat,
// distinct from user-facing error replies. Each report carries a random
// reference so a user complaint can be matched to the log line.
type Escalator struct {
	notifier      *Notifier
	moderatorChat int64
}

// NewEscalator creates an escalator targeting the moderator chat.
func NewEscalator(notifier *Notifier, moderatorChat int64) *Escalator {
	return &Escalator{notifier: notifier, moderatorChat: moderatorChat}
}

// Escalate logs the error and forwards it to the moderator chat,
// fire-and-forget.
func (e *Escalator) Escalate(ctx context.Context, msg string) {
	ref := rand.Uint64()
	if tid := logger.TraceID(ctx); tid != "" {
		log.Printf("[escalate] ref=%X trace=%s: %s", ref, tid, msg)
	} else {
		log.Printf("[escalate] ref=%X: %s", ref, msg)
	}
	e.notifier.Notify(ctx, e.moderatorChat, 0,
		fmt.Sprintf("⚠️ Error ref %X:\n%s", ref, telegram.EscapeMarkdown(msg)))
}
