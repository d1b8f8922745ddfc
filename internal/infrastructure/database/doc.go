// Package database provides the SQLite handle for the central server's
// audit trail.
//
// The database is optional (database.enabled in config.yaml) and holds
// only history: who registered, commanded, deleted or evicted which
// device and when. The live device registry is never written here.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are SQL file pairs (YYYYMMDD_HHMMSS_name.up.sql and
// .down.sql) registered with RegisterMigrations, normally by importing
// the top-level migrations package for its side effect.
package database
