// Package migrations embeds the spimrig SQL schema into the binary so the
// event journal can be created without SQL files on disk.
package migrations

import "embed"

// FS holds the schema migrations at its root.
//
//go:embed *.sql
var FS embed.FS
