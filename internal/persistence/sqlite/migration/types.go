package migration

import "time"

// Migration represents a database migration with its metadata and SQL content.
type Migration struct {
	Version     int    // Numeric version parsed from the file name
	Description string // Human-readable description from the file name
	SQL         string
	FilePath    string
	Checksum    string // sha256 of the file contents
}

// AppliedMigration represents a migration recorded in schema_migrations.
type AppliedMigration struct {
	Version       int
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarises which migrations have been applied and which are pending.
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}
