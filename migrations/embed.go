// Package migrations embeds SQL migration files into the binary.
//
// StarterKit runs its migrations without the SQL files present on the
// filesystem. Importing this package registers them with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
