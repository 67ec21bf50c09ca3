package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/pliefoog/bmad-autopilot-sub009/migrations"
)

/*
 * Config-store schema migrations.
 *
 * Each driver has its own embedded directory of numbered .sql files, applied
 * in filename order. Every applied file is recorded with its SHA256 so an
 * edited migration is refused instead of silently diverging from the schema
 * already on disk. A file runs in one transaction together with its record.
 */

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

type migration struct {
	ID       string
	Checksum string
	SQL      string
}

type appliedRow struct {
	checksum    string
	appliedAt   *time.Time
	executionMs int64
}

type migrator struct {
	db  *sqlx.DB
	set []migration
}

// MigrateUp applies every pending migration after verifying the checksums of
// those already applied.
func MigrateUp(db *sqlx.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	applied, err := m.applied()
	if err != nil {
		return err
	}
	if err := m.verify(applied); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}
	for _, mig := range m.set {
		if _, ok := applied[mig.ID]; ok {
			continue
		}
		if err := m.apply(mig); err != nil {
			return err
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration with its applied state.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	m, err := newMigrator(db)
	if err != nil {
		return nil, err
	}
	applied, err := m.applied()
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.set))
	for _, mig := range m.set {
		s := MigrationStatus{ID: mig.ID, Checksum: mig.Checksum}
		if row, ok := applied[mig.ID]; ok {
			s.Checksum = row.checksum
			s.Applied = true
			s.AppliedAt = row.appliedAt
			s.ExecutionMs = row.executionMs
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func newMigrator(db *sqlx.DB) (*migrator, error) {
	fsys, dir, err := migrationSource(db.DriverName())
	if err != nil {
		return nil, err
	}
	set, err := loadMigrations(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse migrations: %w", err)
	}
	if _, err := db.Exec(migrationsTableDDL(db.DriverName())); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return &migrator{db: db, set: set}, nil
}

// migrationSource selects the embedded migration set for a driver.
func migrationSource(driver string) (fs.FS, string, error) {
	switch driver {
	case "sqlite3":
		return embeddedmigrations.SqliteMigrations, "sqlite", nil
	case "postgres":
		return embeddedmigrations.PostgresMigrations, "postgres", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	paths, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	set := make([]migration, 0, len(paths))
	for _, p := range paths {
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		sum := sha256.Sum256(content)
		set = append(set, migration{
			ID:       path.Base(p),
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(content),
		})
	}
	return set, nil
}

// migrationsTableDDL must stay in sync with the table in 001_initial_schema.sql.
// sqlite keeps applied_at as RFC3339 text.
func migrationsTableDDL(driver string) string {
	appliedAt := "TIMESTAMP WITHOUT TIME ZONE NOT NULL"
	check := ""
	if driver == "sqlite3" {
		appliedAt = "TEXT NOT NULL"
		check = ",\n\t\tCHECK (applied_at LIKE '____-__-__T__:__:__Z')"
	}
	return `CREATE TABLE IF NOT EXISTS migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at ` + appliedAt + `,
		execution_ms INTEGER NOT NULL` + check + `
	)`
}

func (m *migrator) applied() (map[string]appliedRow, error) {
	rows, err := m.db.Queryx("SELECT migration_id, checksum, applied_at, execution_ms FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]appliedRow)
	for rows.Next() {
		var (
			id        string
			row       appliedRow
			appliedAt interface{}
		)
		if err := rows.Scan(&id, &row.checksum, &appliedAt, &row.executionMs); err != nil {
			return nil, err
		}
		row.appliedAt = parseAppliedAt(appliedAt)
		out[id] = row
	}
	return out, rows.Err()
}

// verify rejects edited migrations and database rows with no embedded file.
func (m *migrator) verify(applied map[string]appliedRow) error {
	embedded := make(map[string]string, len(m.set))
	for _, mig := range m.set {
		embedded[mig.ID] = mig.Checksum
	}
	ids := make([]string, 0, len(applied))
	for id := range applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		want, ok := embedded[id]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", id)
		}
		if got := applied[id].checksum; got != want {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", id, want, got)
		}
	}
	return nil
}

func (m *migrator) apply(mig migration) error {
	start := time.Now()
	tx, err := m.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", mig.ID, err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(mig.SQL) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", mig.ID, err)
		}
	}

	now := time.Now().UTC()
	var appliedAt interface{} = now
	if m.db.DriverName() == "sqlite3" {
		appliedAt = now.Format(time.RFC3339)
	}
	record := tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)")
	if _, err := tx.Exec(record, mig.ID, mig.Checksum, appliedAt, time.Since(start).Milliseconds()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", mig.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", mig.ID, err)
	}
	return nil
}

// splitStatements drops whole-line "--" comments and splits on ';'. lib/pq
// does not accept several statements in one Exec.
func splitStatements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// parseAppliedAt handles both drivers: sqlite stores RFC3339 text, postgres a timestamp.
func parseAppliedAt(v interface{}) *time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &parsed
}
