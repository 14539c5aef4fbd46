package db

import (
	"fmt"
	"io"
)

// RunMigrateCommand handles the 'migrate' subcommand: up, down, status
// or help. Output goes to w.
func RunMigrateCommand(args []string, dbPath string, w io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("migrate needs an action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(w)
		return nil
	}

	// Open without migrating; the action decides what happens to the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")
	case "status":
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return printMigrateStatus(database, w)
}

func printMigrateStatus(database *DB, w io.Writer) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "=== Migration Status ===")
	fmt.Fprintf(w, "Current version: %d\n", version)
	fmt.Fprintf(w, "Latest available: %d\n", latest)
	fmt.Fprintf(w, "Dirty: %v\n", dirty)
	switch {
	case dirty:
		fmt.Fprintln(w, "⚠️  Database is in a dirty state. Inspect it before migrating again.")
	case version < latest:
		fmt.Fprintf(w, "⚠️  Database is %d version(s) behind. Run 'breathrate migrate up' to update.\n", latest-version)
	default:
		fmt.Fprintln(w, "✓ Database is up to date!")
	}
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: breathrate [-db path] migrate <action>

Actions:
  up       Apply all pending migrations
  down     Roll back the most recent migration
  status   Show the current and latest schema version
  help     Show this message
`)
}
