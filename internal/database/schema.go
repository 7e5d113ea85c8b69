package database

import _ "embed"

// Schema is the full schema produced by applying every migration. Tests
// apply it directly instead of running migrations.
//
//go:embed schema.sql
var Schema string
