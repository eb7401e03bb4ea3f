// Package migrations contains the embedded SQL migrations of the file registry.
package migrations

import "embed"

// Files exposes the compiled-in migration SQL files.
//
//go:embed *.sql
var Files embed.FS
