package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one schema step with its up and down scripts.
type Migration struct {
	Name string
	Up   string
	Down string
}

// Migrations returns the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	entries, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	out := make([]Migration, 0, len(entries))
	for _, up := range entries {
		name := strings.TrimSuffix(strings.TrimPrefix(up, "migrations/"), ".up.sql")
		upSQL, err := migrationFS.ReadFile(up)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", up, err)
		}
		downSQL, err := migrationFS.ReadFile("migrations/" + name + ".down.sql")
		if err != nil {
			return nil, fmt.Errorf("read down for %s: %w", name, err)
		}
		out = append(out, Migration{Name: name, Up: string(upSQL), Down: string(downSQL)})
	}
	return out, nil
}

// MigrateUp applies every migration in order. Scripts are idempotent.
func MigrateUp(ctx context.Context, db *DB) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m.Up); err != nil {
			return fmt.Errorf("apply %s: %w", m.Name, err)
		}
		slog.Info("migration applied", "name", m.Name)
	}
	return nil
}

// MigrateDown reverts every migration in reverse order.
func MigrateDown(ctx context.Context, db *DB) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if _, err := db.Pool.Exec(ctx, m.Down); err != nil {
			return fmt.Errorf("revert %s: %w", m.Name, err)
		}
		slog.Info("migration reverted", "name", m.Name)
	}
	return nil
}
