// Package schedule maps the bot's named alert intervals to cron
// recurrence rules and decides which intervals are due at a given
// instant. The same rule evaluation backs both the scheduler trigger
// registration and the per-tick due-set computation, so the two can
// never disagree.
package schedule

import (
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Canonical interval names.
const (
	Interval15Min     = "15min"
	IntervalHourly    = "1h"
	Interval6Hour     = "6h"
	Interval24Hour    = "24h"
	IntervalMonday    = "mon"
	IntervalWednesday = "wed"
	IntervalFriday    = "fri"
	IntervalSaturday  = "sat"
)

// Cron expressions (6-field, with seconds).
const (
	cron15Min     = "0 */15 * * * *" // every 15 minutes
	cronHourly    = "0 0 * * * *"    // every hour
	cron6Hour     = "0 0 */6 * * *"  // every 6 hours
	cron24Hour    = "0 0 15 * * *"   // every day at 15:00 UTC
	cronMonday    = "0 0 12 * * Mon" // Monday at noon
	cronWednesday = "0 0 12 * * Wed" // Wednesday at noon
	cronFriday    = "0 0 12 * * Fri" // Friday at noon
	cronSaturday  = "0 0 12 * * Sat" // Saturday at noon
)

// Entry pairs an interval name with its recurrence rule.
type Entry struct {
	Name string
	Expr string
}

// Intervals lists every valid interval with its cron expression,
// finest first. The first entry's expression drives the scheduler.
var Intervals = []Entry{
	{Interval15Min, cron15Min},
	{IntervalHourly, cronHourly},
	{Interval6Hour, cron6Hour},
	{Interval24Hour, cron24Hour},
	{IntervalWednesday, cronWednesday},
	{IntervalFriday, cronFriday},
	{IntervalMonday, cronMonday},
	{IntervalSaturday, cronSaturday},
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// TriggerExpr returns the expression of the finest registered interval,
// used to register the single recurring scheduler job.
func TriggerExpr() string {
	return Intervals[0].Expr
}

// Matches reports whether expr fires during the minute containing now.
// A malformed expression is logged and reported as never matching, so
// one bad rule cannot block evaluation of the others.
func Matches(expr string, now time.Time) bool {
	sched, err := parser.Parse(expr)
	if err != nil {
		log.Printf("[schedule] invalid cron expression %q: %v", expr, err)
		return false
	}
	minute := now.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// Due returns the names of every interval whose rule fires during the
// minute containing now, in registration order. Two intervals may both
// be due in the same tick; each name's rule is evaluated independently.
func Due(now time.Time) []string {
	var due []string
	for _, e := range Intervals {
		if Matches(e.Expr, now) {
			due = append(due, e.Name)
		}
	}
	return due
}

// ParseInterval normalizes user-supplied interval text to its canonical
// name. Input is trimmed and matched case-insensitively. Unrecognized
// input returns ok=false, which callers surface as a validation error.
func ParseInterval(input string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "15m", "15min", "quarter":
		return Interval15Min, true
	case "1h", "hourly", "hour":
		return IntervalHourly, true
	case "6h", "6hour":
		return Interval6Hour, true
	case "24h", "24hour", "daily":
		return Interval24Hour, true
	case "mon", "monday":
		return IntervalMonday, true
	case "wed", "wednesday":
		return IntervalWednesday, true
	case "fri", "friday":
		return IntervalFriday, true
	case "sat", "saturday":
		return IntervalSaturday, true
	default:
		return "", false
	}
}
