/*
 * @Description: quarantine journal kept next to the vault in a SQLite database
 */
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"wib-shield/internal/quarantine"
	"wib-shield/pkg/types"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no entry exists for a quarantine path.
var ErrNotFound = errors.New("journal: entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS quarantine_entries (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	hash            TEXT NOT NULL,
	quarantine_path TEXT NOT NULL,
	original_path   TEXT NOT NULL,
	detection       TEXT NOT NULL,
	severity        INTEGER NOT NULL,
	quarantined_at  INTEGER NOT NULL,
	restored_to     TEXT NOT NULL DEFAULT '',
	restored_at     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_entries_qpath ON quarantine_entries(quarantine_path);
`

// Entry is one isolation recorded in the journal.
type Entry struct {
	ID             int64
	Hash           string
	QuarantinePath string
	OriginalPath   string
	Detection      string // label and summary of the detection kind
	Severity       types.Severity
	QuarantinedAt  time.Time
	RestoredTo     string
	RestoredAt     time.Time // zero if never restored
}

// Restored reports whether the entry has been restored at least once.
func (e Entry) Restored() bool { return !e.RestoredAt.IsZero() }

type Journal struct {
	db *sql.DB
}

/**
 * @Description: 打开（必要时创建）隔离日志数据库
 * @param path string: 数据库文件路径
 * @return *Journal: 日志
 * @return error: 错误
 */
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// RecordIsolation stores the detection that caused qpath to be created.
func (j *Journal) RecordIsolation(ctx context.Context, qpath string, d types.Detection) (int64, error) {
	detection := ""
	if d.Kind != nil {
		detection = d.Kind.Label() + ": " + d.Kind.Summary()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO quarantine_entries (hash, quarantine_path, original_path, detection, severity, quarantined_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		hashFromPath(qpath, d.ContentHash), qpath, d.Path, detection, int(d.Severity), time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("journal: record isolation: %w", err)
	}
	return res.LastInsertId()
}

// RecordRestore marks the most recent entry for qpath as restored to dest.
func (j *Journal) RecordRestore(ctx context.Context, qpath, dest string) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE quarantine_entries SET restored_to = ?, restored_at = ?
		 WHERE id = (SELECT MAX(id) FROM quarantine_entries WHERE quarantine_path = ?)`,
		dest, time.Now().UnixNano(), qpath)
	if err != nil {
		return fmt.Errorf("journal: record restore: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Lookup returns the most recent entry for qpath.
func (j *Journal) Lookup(ctx context.Context, qpath string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, selectEntries+` WHERE quarantine_path = ? ORDER BY id DESC LIMIT 1`, qpath)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Entries lists every recorded isolation, newest first.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, selectEntries+` ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Forget drops every entry for qpath, used when the vault file is deleted.
func (j *Journal) Forget(ctx context.Context, qpath string) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM quarantine_entries WHERE quarantine_path = ?`, qpath); err != nil {
		return fmt.Errorf("journal: forget: %w", err)
	}
	return nil
}

const selectEntries = `SELECT id, hash, quarantine_path, original_path, detection, severity,
	quarantined_at, restored_to, restored_at FROM quarantine_entries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e                   Entry
		severity            int
		quarantinedAt, rest int64
	)
	if err := r.Scan(&e.ID, &e.Hash, &e.QuarantinePath, &e.OriginalPath, &e.Detection,
		&severity, &quarantinedAt, &e.RestoredTo, &rest); err != nil {
		return Entry{}, err
	}
	e.Severity = types.Severity(severity)
	e.QuarantinedAt = time.Unix(0, quarantinedAt)
	if rest != 0 {
		e.RestoredAt = time.Unix(0, rest)
	}
	return e, nil
}

func hashFromPath(qpath, fallback string) string {
	if h := quarantine.HashOf(qpath); h != "" {
		return h
	}
	return fallback
}
