package model

// ── Storage Port Interfaces ──
// These interfaces decouple the evaluation/scheduling logic from the
// concrete SQLite store so tests can run against in-memory fakes.

// DemandStore persists alert subscriptions and the chat registry.
type DemandStore interface {
	// Insert persists a demand. A duplicate identity is reported as
	// ErrDuplicate (distinct from other store failures).
	Insert(d Demand) error

	// DeleteByIdentity removes exactly the row matching the identity
	// fields of d. ErrNotFound if no such row exists.
	DeleteByIdentity(d Demand) error

	// DeleteAllForChat removes every demand owned by the chat.
	DeleteAllForChat(chatID int64) error

	// ListForChat returns the chat's demands ordered by
	// (kind, token, percentage, interval) for stable display indexing.
	ListForChat(chatID int64) ([]Demand, error)

	// ListByIntervalAndKind returns demands matching both fields.
	ListByIntervalAndKind(interval, kind string) ([]Demand, error)

	// SpecialChatIDs returns every chat subscribed to pump broadcasts.
	SpecialChatIDs() ([]int64, error)

	// DemandCountsByChat aggregates demand counts per chat, used to
	// (re)load the in-memory count cache at startup.
	DemandCountsByChat() (map[int64]int, error)

	// InsertChat registers a chat id; inserting a known chat is a no-op.
	InsertChat(chatID int64) error
}

// HistoryStore persists append-only market snapshots.
type HistoryStore interface {
	// Append stores a new snapshot row.
	Append(s HistorySnapshot) error

	// LatestTagged returns the most recent snapshot (by TimestampMin)
	// whose interval tags contain name, or nil if none exists yet.
	LatestTagged(name string) (*HistorySnapshot, error)
}
