// Package migrations embeds the goose migrations for every supported SQL dialect.
package migrations

import "embed"

//go:embed sqlite/*.sql mysql/*.sql
var FS embed.FS

// Dir returns the directory in FS holding the migrations of the given goose dialect.
func Dir(dialect string) string {
	if dialect == "mysql" {
		return "mysql"
	}
	return "sqlite"
}
