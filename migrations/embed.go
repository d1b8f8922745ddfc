// Package migrations embeds the audit database schema into the binary.
//
// Importing it for its side effect registers the files with the
// database package:
//
//	import _ "github.com/FSE-2021-1/central-server/migrations"
package migrations

import (
	"embed"

	"github.com/FSE-2021-1/central-server/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.RegisterMigrations(migrationsFS, ".")
}
