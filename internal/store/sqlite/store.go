// Package sqlite persists demands, the chat registry, and historical
// market snapshots in a single SQLite database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"alertbot-systemv1/internal/model"

	"github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to the database file, e.g. "data/alertbot.db"
}

// Store is a single-connection SQLite store.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL mode, and bootstraps the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chat (
			id INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS demands (
			chat_id    INTEGER NOT NULL,
			thread_id  INTEGER,
			type_of    TEXT    NOT NULL,
			token      TEXT    NOT NULL,
			percentage INTEGER NOT NULL,
			interval   TEXT    NOT NULL,
			PRIMARY KEY (chat_id, type_of, token, percentage, interval)
		);

		CREATE TABLE IF NOT EXISTS tokens_at (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp_in_min INTEGER NOT NULL,
			tokens           TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tokens_at_times (
			tokens_at_id INTEGER NOT NULL REFERENCES tokens_at(id),
			interval     TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tokens_at_times
			ON tokens_at_times (interval, tokens_at_id);
		CREATE INDEX IF NOT EXISTS idx_demands_interval
			ON demands (interval, type_of);
	`)
	return err
}

// InsertChat registers a chat id. Re-inserting a known chat is a no-op.
func (s *Store) InsertChat(chatID int64) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO chat (id) VALUES (?)`, chatID)
	if err != nil {
		return fmt.Errorf("sqlite insert chat: %w", err)
	}
	return nil
}

// Insert persists a demand. A primary-key conflict maps to
// model.ErrDuplicate so callers can present "already exists".
func (s *Store) Insert(d model.Demand) error {
	_, err := s.db.Exec(`
		INSERT INTO demands (chat_id, thread_id, type_of, token, percentage, interval)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ChatID, nullableThread(d.ThreadID), d.Kind, d.Token, d.Percentage, d.Interval,
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return model.ErrDuplicate
		}
		return fmt.Errorf("sqlite insert demand: %w", err)
	}
	return nil
}

// DeleteByIdentity removes exactly the row matching d's identity
// fields. model.ErrNotFound if nothing matched.
func (s *Store) DeleteByIdentity(d model.Demand) error {
	res, err := s.db.Exec(`
		DELETE FROM demands
		WHERE chat_id = ? AND type_of = ? AND token = ? AND percentage = ? AND interval = ?`,
		d.ChatID, d.Kind, d.Token, d.Percentage, d.Interval,
	)
	if err != nil {
		return fmt.Errorf("sqlite delete demand: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteAllForChat bulk-removes every demand owned by the chat.
func (s *Store) DeleteAllForChat(chatID int64) error {
	_, err := s.db.Exec(`DELETE FROM demands WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("sqlite delete demands for chat %d: %w", chatID, err)
	}
	return nil
}

// ListForChat returns the chat's demands in stable display order.
func (s *Store) ListForChat(chatID int64) ([]model.Demand, error) {
	rows, err := s.db.Query(`
		SELECT chat_id, thread_id, type_of, token, percentage, interval
		FROM demands
		WHERE chat_id = ?
		ORDER BY type_of, token, percentage, interval`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite list demands for chat %d: %w", chatID, err)
	}
	defer rows.Close()
	return scanDemands(rows)
}

// ListByIntervalAndKind returns all demands for one interval and kind.
func (s *Store) ListByIntervalAndKind(interval, kind string) ([]model.Demand, error) {
	rows, err := s.db.Query(`
		SELECT chat_id, thread_id, type_of, token, percentage, interval
		FROM demands
		WHERE interval = ? AND type_of = ?`,
		interval, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite list demands for %s/%s: %w", interval, kind, err)
	}
	defer rows.Close()
	return scanDemands(rows)
}

// SpecialChatIDs returns every chat with a pump-broadcast subscription.
func (s *Store) SpecialChatIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT chat_id FROM demands WHERE type_of = ?`, model.KindSpecial)
	if err != nil {
		return nil, fmt.Errorf("sqlite special chat ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DemandCountsByChat aggregates active demand counts per chat.
func (s *Store) DemandCountsByChat() (map[int64]int, error) {
	rows, err := s.db.Query(`SELECT chat_id, COUNT(*) FROM demands GROUP BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite demand counts: %w", err)
	}
	defer rows.Close()

	counts := map[int64]int{}
	for rows.Next() {
		var chatID int64
		var n int
		if err := rows.Scan(&chatID, &n); err != nil {
			return nil, err
		}
		counts[chatID] = n
	}
	return counts, rows.Err()
}

// Append persists a new history snapshot with its interval tags in one
// transaction. Rows are never updated afterwards.
func (s *Store) Append(snap model.HistorySnapshot) error {
	tokens, err := json.Marshal(snap.Tokens)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	res, err := tx.Exec(`INSERT INTO tokens_at (timestamp_in_min, tokens) VALUES (?, ?)`,
		snap.TimestampMin, string(tokens))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite insert tokens_at: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, name := range snap.Intervals {
		if _, err := tx.Exec(`INSERT INTO tokens_at_times (tokens_at_id, interval) VALUES (?, ?)`,
			id, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert interval tag: %w", err)
		}
	}

	return tx.Commit()
}

// LatestTagged returns the most recent snapshot tagged with name, or
// nil if none has been stored yet.
func (s *Store) LatestTagged(name string) (*model.HistorySnapshot, error) {
	row := s.db.QueryRow(`
		SELECT ta.id, ta.timestamp_in_min, ta.tokens
		FROM tokens_at ta
		JOIN tokens_at_times tt ON tt.tokens_at_id = ta.id
		WHERE tt.interval = ?
		ORDER BY ta.timestamp_in_min DESC, ta.id DESC
		LIMIT 1`,
		name,
	)

	var id int64
	var snap model.HistorySnapshot
	var tokens string
	if err := row.Scan(&id, &snap.TimestampMin, &tokens); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite latest tagged %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(tokens), &snap.Tokens); err != nil {
		return nil, fmt.Errorf("unmarshal tokens: %w", err)
	}

	rows, err := s.db.Query(`SELECT interval FROM tokens_at_times WHERE tokens_at_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite interval tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		snap.Intervals = append(snap.Intervals, tag)
	}
	return &snap, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableThread(threadID int) any {
	if threadID == 0 {
		return nil
	}
	return threadID
}

func scanDemands(rows *sql.Rows) ([]model.Demand, error) {
	var demands []model.Demand
	for rows.Next() {
		var d model.Demand
		var thread sql.NullInt64
		if err := rows.Scan(&d.ChatID, &thread, &d.Kind, &d.Token, &d.Percentage, &d.Interval); err != nil {
			return nil, err
		}
		if thread.Valid {
			d.ThreadID = int(thread.Int64)
		}
		demands = append(demands, d)
	}
	return demands, rows.Err()
}
