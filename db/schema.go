// Package db holds the PostgreSQL schema the pgx repositories run against.
package db

import _ "embed"

//go:embed schema.sql
var Schema string
