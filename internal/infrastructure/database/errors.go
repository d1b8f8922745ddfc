package database

import "errors"

var (
	// ErrDisabled indicates the audit database is disabled in configuration.
	ErrDisabled = errors.New("database: disabled in configuration")

	// ErrNoPath indicates an enabled database without a file path.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationMissing indicates an applied version whose files are gone.
	ErrMigrationMissing = errors.New("database: migration not found")

	// ErrNoDownSQL indicates a migration that cannot be rolled back.
	ErrNoDownSQL = errors.New("database: migration has no down SQL")
)
