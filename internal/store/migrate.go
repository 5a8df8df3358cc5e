package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"regexp"
	"sort"
	"strconv"
)

var migrationName = regexp.MustCompile(`^(\d+)_[\w-]+\.(up|down)\.sql$`)

// migrationFile is one *.up.sql file. Name doubles as the key recorded in
// schema_migrations.
type migrationFile struct {
	Seq  int
	Name string
}

// ApplyMigrations brings db up to date with the up files in migrations.
// Each file runs in its own transaction and is skipped once recorded.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	files, err := upMigrations(migrations)
	if err != nil {
		return err
	}

	applied := 0
	for _, file := range files {
		done, err := isMigrated(ctx, db, file.Name)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if err := applyMigration(ctx, db, migrations, file); err != nil {
			return err
		}
		applied++
	}
	if applied > 0 {
		log.Printf("store: schema migrated (%d applied, %d total)", applied, len(files))
	}
	return nil
}

// upMigrations lists the up files of migrations ordered by their numeric
// sequence. Down files and anything not named NNNN_name.up.sql are ignored.
func upMigrations(migrations fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []migrationFile
	seen := map[int]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := migrationName.FindStringSubmatch(entry.Name())
		if m == nil || m[2] != "up" {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad sequence: %w", entry.Name(), err)
		}
		if prev, ok := seen[seq]; ok {
			return nil, fmt.Errorf("migrations %s and %s share sequence %d", prev, entry.Name(), seq)
		}
		seen[seq] = entry.Name()
		files = append(files, migrationFile{Seq: seq, Name: entry.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Seq < files[j].Seq })
	return files, nil
}

func applyMigration(ctx context.Context, db *sql.DB, migrations fs.FS, file migrationFile) error {
	body, err := fs.ReadFile(migrations, file.Name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file.Name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", file.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("run migration %s: %w", file.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, file.Name); err != nil {
		return fmt.Errorf("record migration %s: %w", file.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file.Name, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup migration %s: %w", name, err)
	}
	return n > 0, nil
}
