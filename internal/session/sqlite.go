package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/session/migrations"
)

const migrationTable = "schema_migrations"

// SQLiteRegistry persists session grants in SQLite.
type SQLiteRegistry struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLiteRegistry opens the registry database at path and applies embedded migrations.
func OpenSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("registry path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteRegistry{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (r *SQLiteRegistry) Close() error {
	if r == nil || r.sqlDB == nil {
		return nil
	}
	return r.sqlDB.Close()
}

// Record inserts one grant.
func (r *SQLiteRegistry) Record(ctx context.Context, grant Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := strings.TrimSpace(grant.ID)
	if id == "" {
		return fmt.Errorf("grant id is required")
	}
	var revokedAt sql.NullInt64
	if grant.RevokedAt != nil {
		revokedAt = sql.NullInt64{Int64: toMillis(*grant.RevokedAt), Valid: true}
	}
	_, err := r.sqlDB.ExecContext(
		ctx,
		`INSERT INTO session_grants (
		   id, authority, session_signer, target_program, issued_at, expires_at, revoked_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		grant.Authority.String(),
		grant.SessionSigner.String(),
		grant.TargetProgram.String(),
		toMillis(grant.IssuedAt),
		toMillis(grant.ExpiresAt),
		revokedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrGrantExists
		}
		return fmt.Errorf("record session grant: %w", err)
	}
	return nil
}

// Revoke stamps revoked_at once; revoking twice keeps the first time.
func (r *SQLiteRegistry) Revoke(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := r.sqlDB.ExecContext(
		ctx,
		`UPDATE session_grants SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`,
		toMillis(at),
		strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("revoke session grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke session grant: %w", err)
	}
	if n == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// Lookup returns one grant by id.
func (r *SQLiteRegistry) Lookup(ctx context.Context, id string) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	row := r.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, authority, session_signer, target_program, issued_at, expires_at, revoked_at
		   FROM session_grants
		  WHERE id = ?`,
		strings.TrimSpace(id),
	)

	var (
		grant                      Grant
		authority, signer, program string
		issuedAt, expiresAt        int64
		revokedAt                  sql.NullInt64
	)
	if err := row.Scan(&grant.ID, &authority, &signer, &program, &issuedAt, &expiresAt, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, ErrGrantNotFound
		}
		return Grant{}, fmt.Errorf("lookup session grant: %w", err)
	}

	var err error
	if grant.Authority, err = models.ParsePubkey(authority); err != nil {
		return Grant{}, err
	}
	if grant.SessionSigner, err = models.ParsePubkey(signer); err != nil {
		return Grant{}, err
	}
	if grant.TargetProgram, err = models.ParsePubkey(program); err != nil {
		return Grant{}, err
	}
	grant.IssuedAt = fromMillis(issuedAt)
	grant.ExpiresAt = fromMillis(expiresAt)
	if revokedAt.Valid {
		at := fromMillis(revokedAt.Int64)
		grant.RevokedAt = &at
	}
	return grant, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// applyMigrations executes each embedded *.sql file at most once, in name order.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow("SELECT 1 FROM "+migrationTable+" WHERE name = ?", file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUp(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := sqlDB.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			file,
			toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// extractUp returns the SQL between the Up and Down markers.
func extractUp(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	rest := content[upIdx+len("-- +migrate Up"):]
	if downIdx := strings.Index(rest, "-- +migrate Down"); downIdx != -1 {
		return rest[:downIdx]
	}
	return rest
}
