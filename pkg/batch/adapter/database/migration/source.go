package migration

import (
	"embed"
	"io/fs"
)

//go:embed resource
var rawFrameworkMigrationFS embed.FS

// Source is a set of migrations applied to one named connection.
type Source struct {
	// Name identifies the source in logs.
	Name string
	// FS holds one directory per database type (sqlite, mysql, postgres).
	FS fs.FS
	// Table records the applied versions.
	Table string
	// DBRef names the connection in the database configuration.
	DBRef string
}

// FrameworkMigrationsFS returns the batch metadata migrations.
func FrameworkMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawFrameworkMigrationFS, "resource")
	if err != nil {
		panic(err) // the directory is embedded at build time
	}
	return subFS
}
