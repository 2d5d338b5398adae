// Package demand tracks per-chat demand counts in memory and enforces
// the subscription quota. The cache is authoritative for quota checks;
// it is loaded from the store at startup and kept in step on every
// insert and delete. The check-then-insert sequence is deliberately not
// atomic: concurrent inserts for the same chat can under-enforce the
// quota by at most the number of in-flight requests.
package demand

import (
	"fmt"
	"sync"
)

// MaxDemandsPerChat is the quota for non-admin chats.
const MaxDemandsPerChat = 3

// ErrQuotaExceeded is returned by CheckQuota when the chat is at its
// limit. It is a user-facing validation error, never escalated.
var ErrQuotaExceeded = fmt.Errorf("max demand reached, free the demands or erase one")

// Counts is the process-wide chat → active-demand-count cache.
type Counts struct {
	mu          sync.Mutex
	counts      map[int64]int
	adminChatID int64 // exempt from the quota
}

// NewCounts creates an empty cache. adminChatID is the one chat with an
// unlimited quota.
func NewCounts(adminChatID int64) *Counts {
	return &Counts{
		counts:      map[int64]int{},
		adminChatID: adminChatID,
	}
}

// Reload replaces the whole cache with counts aggregated from the
// store. Called at startup, before the command loop accepts traffic.
func (c *Counts) Reload(counts map[int64]int) {
	fresh := make(map[int64]int, len(counts))
	for k, v := range counts {
		fresh[k] = v
	}
	c.mu.Lock()
	c.counts = fresh
	c.mu.Unlock()
}

// Get returns the cached count for a chat, zero if unknown.
func (c *Counts) Get(chatID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[chatID]
}

// Increase bumps the chat's count after a successful insert.
func (c *Counts) Increase(chatID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[chatID]++
	return c.counts[chatID]
}

// Decrease lowers the chat's count after a successful delete, floored
// at zero.
func (c *Counts) Decrease(chatID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[chatID] > 0 {
		c.counts[chatID]--
	}
	return c.counts[chatID]
}

// Remove drops the chat's entry entirely after a bulk delete, so a
// later quota check treats the chat as unknown (count zero).
func (c *Counts) Remove(chatID int64) {
	c.mu.Lock()
	delete(c.counts, chatID)
	c.mu.Unlock()
}

// CheckQuota returns ErrQuotaExceeded when the chat already holds
// MaxDemandsPerChat demands, unless it is the admin chat. Reads only
// the cache; never re-queries the store.
func (c *Counts) CheckQuota(chatID int64) error {
	if chatID == c.adminChatID {
		return nil
	}
	if c.Get(chatID) >= MaxDemandsPerChat {
		return ErrQuotaExceeded
	}
	return nil
}
