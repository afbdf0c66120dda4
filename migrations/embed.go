// Package migrations embeds the bridge's SQL migration files into the
// binary so deployments need no SQL files on disk.
package migrations

import (
	"embed"

	"marstek-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
