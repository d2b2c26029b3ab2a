// Package migrations ships the schema as versioned SQL files embedded in the
// server binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
