package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/domain"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps snapshots as rows of a SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
	now     func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the
// schema. ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal=WAL&_fk=1&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	// One connection: SQLite has a single writer and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping snapshot database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save stores m under label, replacing any previous snapshot with the same
// key.
func (s *SQLiteStore) Save(ctx context.Context, m *domain.Model, label string) error {
	if err := validateKey(m.AgentType, label); err != nil {
		return err
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	const query = `
		INSERT INTO snapshots (agent_type, label, created_at, size, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (agent_type, label) DO UPDATE SET
			created_at = excluded.created_at,
			size = excluded.size,
			data = excluded.data`
	_, err = s.db.ExecContext(ctx, query,
		m.AgentType, label, s.now().UTC().Format(time.RFC3339), len(data), data)
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", label, m.AgentType, err)
	}
	return nil
}

// Load returns the snapshot of agentType saved under label.
func (s *SQLiteStore) Load(ctx context.Context, agentType, label string) (*domain.Model, error) {
	if err := validateKey(agentType, label); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE agent_type = ? AND label = ?`,
		agentType, label).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, label, agentType)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s/%s: %w", label, agentType, err)
	}
	return Decode(data)
}

// List returns the snapshots of agentType, newest first.
func (s *SQLiteStore) List(ctx context.Context, agentType string) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, created_at, size FROM snapshots WHERE agent_type = ? ORDER BY created_at DESC, label`,
		agentType)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var (
			info    Info
			created string
		)
		if err := rows.Scan(&info.Label, &created, &info.Size); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, info)
	}
	return out, rows.Err()
}
