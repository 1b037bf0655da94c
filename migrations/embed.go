// Package migrations holds the SQL schema migrations applied by
// scripts/run_migrations.go and the integration test harness.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
