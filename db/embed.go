// Package db embeds the SQL migrations applied by the migrate runner.
package db

import "embed"

// MigrationsDir is the directory inside Migrations holding goose files.
const MigrationsDir = "migrations"

// Migrations holds the goose SQL files.
//
//go:embed migrations/*.sql
var Migrations embed.FS
