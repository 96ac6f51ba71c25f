// Package sqlite provides a SQLite backed core.KnowledgeStore using the pure
// Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	_ "modernc.org/sqlite"
)

// Options configure a Store.
type Options struct {
	Logger logging.Logger
}

// Store persists knowledge entries in a single SQLite file.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New opens (or creates) the database at dbPath and runs migrations. Use
// ":memory:" for a throwaway database.
func New(dbPath string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	// WAL mode lets readers proceed while the single writer commits.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logging.OrNoOp(opts.Logger)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'general',
		tags TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		source_result_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_knowledge_category ON knowledge_entries(category);
	CREATE INDEX IF NOT EXISTS idx_knowledge_source_result ON knowledge_entries(source_result_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create inserts entry, assigning an id and creation time when missing.
func (s *Store) Create(ctx context.Context, entry core.KnowledgeEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = core.NewPrefixedID(core.EntryPrefix)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Category == "" {
		entry.Category = "general"
	}

	tags, err := json.Marshal(core.CloneStrings(entry.Tags))
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	metadata, err := json.Marshal(entry.Metadata.Clone())
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	var sourceResult sql.NullString
	if v, ok := entry.Metadata[core.MetaSourceResultID].Str(); ok {
		sourceResult = sql.NullString{String: v, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO knowledge_entries (id, title, content, category, tags, metadata, source_result_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Title, entry.Content, entry.Category, string(tags), string(metadata), sourceResult,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", fmt.Errorf("knowledge entry %q: %w", entry.ID, core.ErrDuplicateID)
		}
		return "", fmt.Errorf("insert knowledge entry: %w", err)
	}
	s.logger.Debug("Knowledge entry stored", "entry_id", entry.ID, "category", entry.Category)
	return entry.ID, nil
}

// Get returns the entry with id or core.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*core.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, category, tags, metadata, created_at FROM knowledge_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("knowledge entry %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Search matches keyword against title, content and each tag, oldest first.
// Matching is a case-insensitive substring test; LIKE wildcards in keyword
// are literal. An empty keyword lists every entry.
func (s *Store) Search(ctx context.Context, keyword string) ([]core.KnowledgeEntry, error) {
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(keyword)) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, category, tags, metadata, created_at FROM knowledge_entries
		 WHERE title LIKE ?1 ESCAPE '\' OR content LIKE ?1 ESCAPE '\'
		    OR EXISTS (SELECT 1 FROM json_each(knowledge_entries.tags) WHERE json_each.value LIKE ?1 ESCAPE '\')
		 ORDER BY seq ASC`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}
	defer rows.Close()

	entries := make([]core.KnowledgeEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// BySourceResult returns the entries derived from one result.
func (s *Store) BySourceResult(ctx context.Context, resultID string) ([]core.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, category, tags, metadata, created_at FROM knowledge_entries
		 WHERE source_result_id = ? ORDER BY seq ASC`, resultID)
	if err != nil {
		return nil, fmt.Errorf("query knowledge by result: %w", err)
	}
	defer rows.Close()

	entries := make([]core.KnowledgeEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*core.KnowledgeEntry, error) {
	var (
		entry              core.KnowledgeEntry
		tags, meta, create string
	)
	if err := row.Scan(&entry.ID, &entry.Title, &entry.Content, &entry.Category, &tags, &meta, &create); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan knowledge entry: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &entry.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if entry.Metadata == nil {
		entry.Metadata = core.Values{}
	}
	created, err := time.Parse(time.RFC3339Nano, create)
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	entry.CreatedAt = created
	return &entry, nil
}
