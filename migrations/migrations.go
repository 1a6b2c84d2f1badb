// Package migrations embeds the versioned schema for each supported dialect.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/garyjia/procurement/pkg/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// For returns the migration files for dialect
func For(dialect database.Dialect) (fs.FS, error) {
	switch dialect {
	case database.DialectSQLite:
		return fs.Sub(files, "sqlite")
	case database.DialectPostgres:
		return fs.Sub(files, "postgres")
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}
