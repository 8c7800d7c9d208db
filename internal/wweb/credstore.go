package wweb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Credentials is the pairing state for a web session: enough to resume an
// authenticated session without scanning a new QR code.
type Credentials struct {
	DeviceID    string
	SessionBlob []byte
	PairedAt    time.Time
}

// CredStore persists web-session pairing credentials in SQLite. Message
// history is never stored here.
type CredStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenCredStore(dbPath string, logger *slog.Logger) (*CredStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite, single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &CredStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *CredStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		id           INTEGER PRIMARY KEY CHECK (id = 1),
		device_id    TEXT NOT NULL,
		session_blob BLOB,
		paired_at    DATETIME NOT NULL,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores or replaces the single credential row.
func (s *CredStore) Save(ctx context.Context, creds Credentials) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, device_id, session_blob, paired_at, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			session_blob = excluded.session_blob,
			paired_at = excluded.paired_at,
			updated_at = CURRENT_TIMESTAMP`,
		creds.DeviceID, creds.SessionBlob, creds.PairedAt)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	s.logger.Info("web session credentials saved", "device_id", creds.DeviceID)
	return nil
}

// Load returns the stored credentials, or nil when the device has never
// been paired.
func (s *CredStore) Load(ctx context.Context) (*Credentials, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT device_id, session_blob, paired_at FROM credentials WHERE id = 1`)

	var creds Credentials
	err := row.Scan(&creds.DeviceID, &creds.SessionBlob, &creds.PairedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &creds, nil
}

// Clear removes the stored pairing, forcing a fresh login next time.
func (s *CredStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (s *CredStore) Close() error {
	return s.db.Close()
}
