// Package database implements the hash index on SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"romba-go/internal/database/migrations"
	"romba-go/internal/model"
	"romba-go/internal/romba"
)

// SQLiteIndex implements romba.Index. Writes are serialised through writeMu
// so every batch runs in exactly one transaction on one connection.
type SQLiteIndex struct {
	db   *sql.DB
	path string

	writeMu sync.Mutex
}

// NewSQLiteIndex opens the index at path, or an in-memory index for
// ":memory:". It does not migrate; see NewIndexFromConfig.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteIndex{db: db, path: path}, nil
}

// NewSQLiteIndexFromDB wraps an already configured connection.
func NewSQLiteIndexFromDB(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// OpenConnection opens a SQLite connection pool. File databases use WAL and
// a busy timeout so readers do not block the single writer. An in-memory
// database is confined to one connection, since each connection would
// otherwise get its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// Content

var recordStatements = []struct {
	query string
	need  func(h model.HashSet, depot string) bool
	args  func(h model.HashSet, depot string) []any
}{
	{
		query: "INSERT OR IGNORE INTO crc (crc) VALUES (?)",
		need:  func(h model.HashSet, _ string) bool { return h.CRC32 != "" },
		args:  func(h model.HashSet, _ string) []any { return []any{h.CRC32} },
	},
	{
		query: "INSERT OR IGNORE INTO md5 (md5) VALUES (?)",
		need:  func(h model.HashSet, _ string) bool { return h.MD5 != "" },
		args:  func(h model.HashSet, _ string) []any { return []any{h.MD5} },
	},
	{
		query: "INSERT OR IGNORE INTO sha1 (sha1, depot) VALUES (?, NULLIF(?, ''))",
		need:  func(h model.HashSet, _ string) bool { return h.SHA1 != "" },
		args:  func(h model.HashSet, depot string) []any { return []any{h.SHA1, depot} },
	},
	{
		// Fills in a location for content first seen through a DAT. An
		// existing location is never replaced.
		query: "UPDATE sha1 SET depot = ? WHERE sha1 = ? AND depot IS NULL",
		need:  func(h model.HashSet, depot string) bool { return h.SHA1 != "" && depot != "" },
		args:  func(h model.HashSet, depot string) []any { return []any{depot, h.SHA1} },
	},
	{
		query: "INSERT OR IGNORE INTO crc_sha1 (crc, sha1) VALUES (?, ?)",
		need:  func(h model.HashSet, _ string) bool { return h.CRC32 != "" && h.SHA1 != "" },
		args:  func(h model.HashSet, _ string) []any { return []any{h.CRC32, h.SHA1} },
	},
	{
		query: "INSERT OR IGNORE INTO md5_sha1 (md5, sha1) VALUES (?, ?)",
		need:  func(h model.HashSet, _ string) bool { return h.MD5 != "" && h.SHA1 != "" },
		args:  func(h model.HashSet, _ string) []any { return []any{h.MD5, h.SHA1} },
	},
}

func (s *SQLiteIndex) RecordContent(ctx context.Context, hashes model.HashSet, depot string) error {
	return s.RecordContents(ctx, []model.IndexEntry{{Hashes: hashes, Depot: depot}})
}

// RecordContents validates the whole batch first and then applies it in a
// single transaction. A failure rolls back every row of the batch.
func (s *SQLiteIndex) RecordContents(ctx context.Context, entries []model.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	normalized := make([]model.IndexEntry, len(entries))
	for i, e := range entries {
		h := e.Hashes.Normalize()
		if err := h.Validate(); err != nil {
			return fmt.Errorf("%w: %v", romba.ErrInvalidHash, err)
		}
		normalized[i] = model.IndexEntry{Hashes: h, Depot: e.Depot}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := make([]*sql.Stmt, len(recordStatements))
		for i, rs := range recordStatements {
			stmt, err := tx.PrepareContext(ctx, rs.query)
			if err != nil {
				return fmt.Errorf("preparing statement: %w", err)
			}
			defer stmt.Close()
			stmts[i] = stmt
		}

		for _, e := range normalized {
			for i, rs := range recordStatements {
				if !rs.need(e.Hashes, e.Depot) {
					continue
				}
				if _, err := stmts[i].ExecContext(ctx, rs.args(e.Hashes, e.Depot)...); err != nil {
					return fmt.Errorf("recording %s: %w", e.Hashes.SHA1, err)
				}
			}
		}
		return nil
	})
}

func (s *SQLiteIndex) LookupByAny(ctx context.Context, crc, md5, sha1 string) (bool, error) {
	crc, md5, sha1 = norm(crc), norm(md5), norm(sha1)
	if crc == "" && md5 == "" && sha1 == "" {
		return false, nil
	}
	var found bool
	err := s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM crc_sha1 WHERE ?1 != '' AND crc = ?1)
			OR EXISTS (SELECT 1 FROM md5_sha1 WHERE ?2 != '' AND md5 = ?2)
			OR EXISTS (SELECT 1 FROM sha1 WHERE ?3 != '' AND sha1 = ?3)
	`, crc, md5, sha1).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("looking up hashes: %w", err)
	}
	return found, nil
}

func (s *SQLiteIndex) ResolveSHA1s(ctx context.Context, hashes model.HashSet) ([]string, error) {
	h := hashes.Normalize()
	if h.CRC32 == "" && h.MD5 == "" && h.SHA1 == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sha1 FROM crc_sha1 WHERE ?1 != '' AND crc = ?1
		UNION
		SELECT sha1 FROM md5_sha1 WHERE ?2 != '' AND md5 = ?2
		UNION
		SELECT sha1 FROM sha1 WHERE ?3 != '' AND sha1 = ?3
		ORDER BY 1
	`, h.CRC32, h.MD5, h.SHA1)
	if err != nil {
		return nil, fmt.Errorf("resolving sha1: %w", err)
	}
	return scanStrings(rows)
}

func (s *SQLiteIndex) FindDepot(ctx context.Context, sha1 string) (string, bool, error) {
	var depot sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT depot FROM sha1 WHERE sha1 = ?", norm(sha1)).Scan(&depot)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("finding depot: %w", err)
	}
	return depot.String, depot.Valid, nil
}

func (s *SQLiteIndex) ListDepotSHA1s(ctx context.Context, depot, prefix string) ([]string, error) {
	prefix = norm(prefix)
	if !model.IsHex(prefix, len(prefix)) {
		return nil, fmt.Errorf("prefix %q: %w", prefix, romba.ErrInvalidHash)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT sha1 FROM sha1 WHERE depot = ? AND sha1 LIKE ? || '%' ORDER BY sha1",
		depot, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing depot contents: %w", err)
	}
	return scanStrings(rows)
}

func (s *SQLiteIndex) RemoveDepotEntries(ctx context.Context, depot string, sha1s []string) error {
	if len(sha1s) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "UPDATE sha1 SET depot = NULL WHERE sha1 = ? AND depot = ?")
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()
		for _, h := range sha1s {
			if _, err := stmt.ExecContext(ctx, norm(h), depot); err != nil {
				return fmt.Errorf("removing %s: %w", h, err)
			}
		}
		return nil
	})
}

// DAT registry

func (s *SQLiteIndex) RegisterDat(ctx context.Context, sha1 string) error {
	sha1 = norm(sha1)
	if !model.IsHex(sha1, model.SHA1Length) {
		return fmt.Errorf("dat hash %q: %w", sha1, romba.ErrInvalidHash)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO dat (hash) VALUES (?)", sha1); err != nil {
		return fmt.Errorf("registering dat: %w", err)
	}
	return nil
}

// UnregisterDats forgets the given DATs. The hash rows they contributed are
// shared with other DATs and depots, so they stay.
func (s *SQLiteIndex) UnregisterDats(ctx context.Context, sha1s []string) error {
	if len(sha1s) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM dat WHERE hash = ?")
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()
		for _, h := range sha1s {
			if _, err := stmt.ExecContext(ctx, norm(h)); err != nil {
				return fmt.Errorf("unregistering dat %s: %w", h, err)
			}
		}
		return nil
	})
}

func (s *SQLiteIndex) IsDatRegistered(ctx context.Context, sha1 string) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM dat WHERE hash = ?)", norm(sha1)).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("checking dat: %w", err)
	}
	return found, nil
}

func (s *SQLiteIndex) DistinctRegisteredDats(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT hash FROM dat")
	if err != nil {
		return nil, fmt.Errorf("listing dats: %w", err)
	}
	hashes, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		out[h] = struct{}{}
	}
	return out, nil
}

// Rescan checkpoints

func (s *SQLiteIndex) RescanCheckpoint(ctx context.Context, depot string) (string, error) {
	var shard string
	err := s.db.QueryRowContext(ctx, "SELECT shard FROM rescan_checkpoints WHERE depot = ?", depot).Scan(&shard)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading rescan checkpoint: %w", err)
	}
	return shard, nil
}

func (s *SQLiteIndex) SetRescanCheckpoint(ctx context.Context, depot, shard string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rescan_checkpoints (depot, shard) VALUES (?, ?)
		ON CONFLICT (depot) DO UPDATE SET shard = excluded.shard
	`, depot, shard)
	if err != nil {
		return fmt.Errorf("setting rescan checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) ClearRescanCheckpoint(ctx context.Context, depot string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM rescan_checkpoints WHERE depot = ?", depot); err != nil {
		return fmt.Errorf("clearing rescan checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Stats(ctx context.Context) (*romba.IndexStats, error) {
	st := &romba.IndexStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM crc),
			(SELECT COUNT(*) FROM md5),
			(SELECT COUNT(*) FROM sha1),
			(SELECT COUNT(*) FROM crc_sha1),
			(SELECT COUNT(*) FROM md5_sha1),
			(SELECT COUNT(*) FROM dat),
			(SELECT COUNT(*) FROM sha1 WHERE depot IS NOT NULL)
	`).Scan(&st.CRC, &st.MD5, &st.SHA1, &st.CRCSHA1, &st.MD5SHA1, &st.Dats, &st.InDepots)
	if err != nil {
		return nil, fmt.Errorf("counting rows: %w", err)
	}
	return st, nil
}

// Operation tracking

func (s *SQLiteIndex) CreateOperation(ctx context.Context, op *romba.Operation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO operations (id, operation, parameters, status, started_at) VALUES (?, ?, ?, ?, ?)",
		op.ID, op.Operation, op.Parameters, op.Status, op.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating operation: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) FinishOperation(ctx context.Context, id, status string, finishedAt time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx,
		"UPDATE operations SET status = ?, finished_at = ? WHERE id = ?",
		status, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %s", id)
	}
	return nil
}

// ListOperations returns up to limit operations, newest first.
func (s *SQLiteIndex) ListOperations(ctx context.Context, limit int) ([]*romba.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, parameters, status, started_at, finished_at
		FROM operations ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*romba.Operation
	for rows.Next() {
		op := &romba.Operation{}
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path, or ":memory:".
func (s *SQLiteIndex) Path() string {
	return s.path
}

func (s *SQLiteIndex) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the index to destPath with VACUUM
// INTO. destPath must not exist.
func (s *SQLiteIndex) BackupTo(ctx context.Context, destPath string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up index: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteIndex) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return out, nil
}

func norm(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

var _ romba.Index = (*SQLiteIndex)(nil)
