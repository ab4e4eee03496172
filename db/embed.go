// Package db embeds the PostgreSQL schema migrations.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the migration files rooted at the migrations directory.
func Migrations() (fs.FS, error) {
	return fs.Sub(embedded, "migrations")
}
