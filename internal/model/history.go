package model

// HistorySnapshot is one persisted time-bucketed market snapshot.
// Rows are append-only: a snapshot is written once per tick and never
// updated. Intervals lists the interval names this snapshot satisfies,
// so a later evaluation can fetch "the last snapshot for 1h" etc.
type HistorySnapshot struct {
	TimestampMin int32    `json:"timestamp_in_min"` // unix time / 60
	Intervals    []string `json:"times"`
	Tokens       TokenMap `json:"tokens"`
}
