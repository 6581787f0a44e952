package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"node-rewards-ingester/internal/storage"
)

// Migration directions accepted by Migrate.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// Migrate applies, rolls back or reports the ledger schema.
func (a *App) Migrate(ctx context.Context, direction string) error {
	if !a.Config.Database.Enabled() {
		return errors.New("database not configured; nothing to migrate")
	}

	m := storage.NewMigrator(a.Config.Database.DSN, a.Logger)
	switch direction {
	case MigrateUp, "":
		return m.Up(ctx)
	case MigrateDown:
		return m.Down(ctx)
	case MigrateStatus:
		version, dirty, err := m.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "version: %d\ndirty: %t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
}
