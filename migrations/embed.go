// Package migrations embeds SQL migration files into the binary, so the
// schema can be applied without the SQL files present on the filesystem.
package migrations

import (
	"embed"

	"github.com/irbridge/core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
