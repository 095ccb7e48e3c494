package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang-migrate/migrate/v4"

	"github.com/nexus-iot/nexus/internal/platform/db"
)

// Migrator is the subset of *migrate.Migrate used by the CLI.
type Migrator interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

// MigrateCLI applies the embedded schema migrations.
type MigrateCLI struct {
	m   Migrator
	out io.Writer
}

// NewMigrateCLI opens a migrator for the DSN.
func NewMigrateCLI(dsn string, out io.Writer) (*MigrateCLI, error) {
	m, err := db.NewMigrate(dsn)
	if err != nil {
		return nil, err
	}
	return &MigrateCLI{m: m, out: out}, nil
}

// Close releases the source and database handles.
func (c *MigrateCLI) Close() error {
	srcErr, dbErr := c.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Up applies all pending migrations.
func (c *MigrateCLI) Up() error {
	err := c.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(c.out, "no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	fmt.Fprintln(c.out, "migrations applied")
	return nil
}

// Down rolls back steps migrations.
func (c *MigrateCLI) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrate down: steps must be positive, got %d", steps)
	}
	if err := db.IgnoreNoChange(c.m.Steps(-steps)); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	fmt.Fprintf(c.out, "rolled back %d migration(s)\n", steps)
	return nil
}

// Version prints the current schema version.
func (c *MigrateCLI) Version() error {
	version, dirty, err := c.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(c.out, "no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	if dirty {
		fmt.Fprintf(c.out, "version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(c.out, "version %d\n", version)
	return nil
}
