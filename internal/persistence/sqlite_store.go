package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the durable store for conversation history and the
// downloaded-pair set. History changes are pushed to subscribers; no
// polling.
type SQLiteStore struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{
		db:   db,
		subs: make(map[int]chan struct{}),
	}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// UpsertTurn saves a turn; an existing row with the same timestamp is
// replaced.
func (s *SQLiteStore) UpsertTurn(ctx context.Context, turn ConversationTurn) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversation_turns (ts, original_text, translated_text, source_lang, target_lang)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ts) DO UPDATE SET
			original_text=excluded.original_text,
			translated_text=excluded.translated_text,
			source_lang=excluded.source_lang,
			target_lang=excluded.target_lang`,
		turn.Timestamp.UnixMilli(),
		turn.OriginalText,
		turn.TranslatedText,
		turn.SourceLang,
		turn.TargetLang,
	)
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// ListTurns returns turns ordered by timestamp descending. limit <= 0
// means no limit.
func (s *SQLiteStore) ListTurns(ctx context.Context, limit int) ([]ConversationTurn, error) {
	query := `SELECT ts, original_text, translated_text, source_lang, target_lang
		 FROM conversation_turns
		 ORDER BY ts DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]ConversationTurn, 0)
	for rows.Next() {
		var item ConversationTurn
		var ts int64
		if err := rows.Scan(
			&ts,
			&item.OriginalText,
			&item.TranslatedText,
			&item.SourceLang,
			&item.TargetLang,
		); err != nil {
			return nil, err
		}
		item.Timestamp = time.UnixMilli(ts).UTC()
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// DeleteTurn removes the turn with the given timestamp.
func (s *SQLiteStore) DeleteTurn(ctx context.Context, timestamp time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE ts = ?`, timestamp.UnixMilli())
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// DeleteAllTurns clears the conversation history.
func (s *SQLiteStore) DeleteAllTurns(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_turns`)
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Subscribe returns a channel signalled after every history mutation,
// and a cancel function releasing the subscription. The channel carries
// coalesced change ticks, not row data.
func (s *SQLiteStore) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
	return ch, cancel
}

func (s *SQLiteStore) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A pending tick already covers this change.
		}
	}
}

// SavePair records a successfully downloaded language pair.
func (s *SQLiteStore) SavePair(ctx context.Context, source, target string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO downloaded_pairs (source, target) VALUES (?, ?)
		 ON CONFLICT(source, target) DO NOTHING`,
		source,
		target,
	)
	return err
}

// RemovePairsWithLanguage forgets every pair whose source or target is
// exactly the given language code.
func (s *SQLiteStore) RemovePairsWithLanguage(ctx context.Context, language string) error {
	_, err := s.db.ExecContext(
		ctx,
		`DELETE FROM downloaded_pairs WHERE source = ? OR target = ?`,
		language,
		language,
	)
	return err
}

// LoadPairs returns all recorded pairs as "source-target" strings.
func (s *SQLiteStore) LoadPairs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, target FROM downloaded_pairs ORDER BY source, target`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, err
		}
		ret = append(ret, source+"-"+target)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
