package migrations

import (
	_ "embed"

	"github.com/origin-gov/governance-listener/internal/db"
)

//go:embed 001_initial.sql
var mig001 string

// Migrations returns the migration set for the listener database in
// apply order.
func Migrations() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_initial.sql",
			SQL: mig001,
		},
	}
}

// RunMigrations runs all pending migrations for the listener database.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, Migrations())
}
