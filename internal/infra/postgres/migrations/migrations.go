// Package migrations holds the schema for quizzes and archived game results.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
