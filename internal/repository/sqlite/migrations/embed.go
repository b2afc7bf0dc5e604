package migrations

import "embed"

// FS holds the versioned SQL migrations applied by Run.
//
//go:embed *.sql
var FS embed.FS
