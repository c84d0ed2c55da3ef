package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps records in a local SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// scanRecord handles nullable columns when scanning a row
func scanRecord(scanner interface{ Scan(...any) error }) (*Record, error) {
	var r Record
	var phrase, dateApplied, timeReceived sql.NullString

	err := scanner.Scan(&r.Company, &r.Role, &r.Status, &phrase, &dateApplied, &timeReceived)
	if err != nil {
		return nil, err
	}

	r.Phrase = phrase.String
	r.DateApplied = dateApplied.String
	r.TimeReceived = timeReceived.String
	return &r, nil
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS applications (
		position INTEGER PRIMARY KEY,
		company TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		phrase TEXT,
		date_applied TEXT NOT NULL DEFAULT '',
		time_received TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (company, role, date_applied, time_received)
	);

	CREATE INDEX IF NOT EXISTS idx_app_status ON applications(status);
	CREATE INDEX IF NOT EXISTS idx_app_date ON applications(date_applied);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Load implements Store
func (s *SQLiteStore) Load(ctx context.Context) ([]Record, error) {
	query := `
	SELECT company, role, status, phrase, date_applied, time_received
	FROM applications ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// Save implements Store. The table is rewritten in one transaction so a
// failed save leaves the previous set intact.
func (s *SQLiteStore) Save(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM applications`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO applications (position, company, role, status, phrase, date_applied, time_received)
	VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, i, r.Company, r.Role, r.Status, r.Phrase, r.DateApplied, r.TimeReceived); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
